package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	TagsBound       prometheus.Counter
	TagsRevoked     prometheus.Counter
	MembersUpserted prometheus.Counter
	MembersBanned   prometheus.Counter
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		TagsBound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heimdall_tags_bound_total",
			Help: "Total tags issued to members",
		}),
		TagsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heimdall_tags_revoked_total",
			Help: "Total tags revoked",
		}),
		MembersUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heimdall_members_upserted_total",
			Help: "Total member create-or-update operations",
		}),
		MembersBanned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heimdall_members_banned_total",
			Help: "Total ban windows applied to members",
		}),
	}
}

// IncTagsBound records a successful tag issuance.
func (m *Metrics) IncTagsBound() {
	if m != nil {
		m.TagsBound.Inc()
	}
}

// IncTagsRevoked records a successful revocation.
func (m *Metrics) IncTagsRevoked() {
	if m != nil {
		m.TagsRevoked.Inc()
	}
}

// IncMembersUpserted records a member upsert.
func (m *Metrics) IncMembersUpserted() {
	if m != nil {
		m.MembersUpserted.Inc()
	}
}

// IncMembersBanned records a ban window application.
func (m *Metrics) IncMembersBanned() {
	if m != nil {
		m.MembersBanned.Inc()
	}
}
