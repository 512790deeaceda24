// Package delivery contains the email service provider adapters. Each
// adapter implements dispatch.Deliverer for one provider; the process picks
// one at startup based on configuration.
package delivery
