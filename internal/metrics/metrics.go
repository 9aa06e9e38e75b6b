package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the registration service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	UsersCreated          *prometheus.CounterVec
	ChannelsConfirmed     *prometheus.CounterVec
	NotificationFailures  *prometheus.CounterVec
	GatewayTokenRefreshes *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idp_users_created_total",
			Help: "Total number of identities created, by registration channel",
		}, []string{"channel"}),
		ChannelsConfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idp_channels_confirmed_total",
			Help: "Total number of successful channel confirmations",
		}, []string{"channel"}),
		NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idp_notification_failures_total",
			Help: "Confirmation messages that could not be delivered",
		}, []string{"channel"}),
		GatewayTokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idp_sms_gateway_token_refreshes_total",
			Help: "SMS gateway credential exchanges, by outcome",
		}, []string{"outcome"}),
	}
}

// IncUsersCreated counts a created identity.
func (m *Metrics) IncUsersCreated(channel string) {
	if m == nil {
		return
	}
	m.UsersCreated.WithLabelValues(channel).Inc()
}

// IncChannelsConfirmed counts a confirmed channel.
func (m *Metrics) IncChannelsConfirmed(channel string) {
	if m == nil {
		return
	}
	m.ChannelsConfirmed.WithLabelValues(channel).Inc()
}

// IncNotificationFailures counts a dropped confirmation message.
func (m *Metrics) IncNotificationFailures(channel string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(channel).Inc()
}

// IncGatewayTokenRefreshes counts a credential exchange with the SMS gateway.
func (m *Metrics) IncGatewayTokenRefreshes(outcome string) {
	if m == nil {
		return
	}
	m.GatewayTokenRefreshes.WithLabelValues(outcome).Inc()
}
