package nats

import (
	"time"

	"github.com/brojonat/solcredit/service/report"
)

// ReportEvent is published to the subject "reports.{address}" in JetStream.
type ReportEvent struct {
	Address string `json:"address"`
	Score   int    `json:"score"`
	Tier    string `json:"tier"`

	Report *report.CreditReport `json:"report"`

	PublishedAt time.Time `json:"published_at"`
}

// FromReport converts a finished credit report to a ReportEvent.
func FromReport(r *report.CreditReport) *ReportEvent {
	return &ReportEvent{
		Address:     r.Address,
		Score:       r.Score,
		Tier:        string(r.Tier),
		Report:      r,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject a report for address is published to.
func Subject(address string) string {
	return SubjectPrefix + address
}
