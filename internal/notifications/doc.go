// Package notifications tells the outside world what afterlive did.
//
// Two independent channels exist. Listener webhooks (Dispatcher) receive a
// ProcessFinished document after every successful pipeline run and are
// retried a fixed number of times. Operator alerts (Service) go to an ntfy
// topic and degrade to a no-op when no topic is configured.
package notifications
