// Package dispatch implements campaign creation and the send run lifecycle.
//
// The service layer owns all business logic: recipient filtering at creation,
// the per-campaign single-run guarantee, the Failed-to-Pending reset at run
// start, and the sequential delivery loop with immediate per-recipient
// persistence. It depends on the Repository and Deliverer contracts defined
// in this package and should never import from api/.
//
// Repository implementations live in repository/postgres/. Deliverer
// implementations live in delivery/.
package dispatch
