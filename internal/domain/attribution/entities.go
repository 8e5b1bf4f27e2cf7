// Package attribution defines the core domain types for multi-touch
// attribution: touchpoints, conversions, journeys, attribution models,
// and the results they produce.
package attribution

import (
	"time"

	"github.com/shopspring/decimal"
)

// Channel identifies the marketing medium a touchpoint belongs to.
type Channel string

const (
	ChannelPaidSearch    Channel = "paid-search"
	ChannelPaidSocial    Channel = "paid-social"
	ChannelOrganicSearch Channel = "organic-search"
	ChannelEmail         Channel = "email"
	ChannelDirect        Channel = "direct"
	ChannelReferral      Channel = "referral"
	ChannelDisplay       Channel = "display"
	ChannelAffiliate     Channel = "affiliate"
	ChannelOther         Channel = "other"
)

// Valid reports whether c names a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPaidSearch, ChannelPaidSocial, ChannelOrganicSearch,
		ChannelEmail, ChannelDirect, ChannelReferral, ChannelDisplay,
		ChannelAffiliate, ChannelOther:
		return true
	}
	return false
}

// Touchpoint is a single recorded marketing interaction for a customer.
// Touchpoints are immutable once ingested.
type Touchpoint struct {
	ID         string           `json:"id"`
	CustomerID string           `json:"customerId"`
	Channel    Channel          `json:"channel"`
	CampaignID string           `json:"campaignId,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Cost       *decimal.Decimal `json:"cost,omitempty"`
}

// Validate checks the required fields for ingestion.
func (t *Touchpoint) Validate() error {
	v := &ValidationError{}
	if t.CustomerID == "" {
		v.Add("customerId", "required")
	}
	if t.Timestamp.IsZero() {
		v.Add("timestamp", "required")
	}
	if t.Channel == "" {
		v.Add("channel", "required")
	} else if !t.Channel.Valid() {
		v.Add("channel", "unknown channel")
	}
	if t.Cost != nil && t.Cost.IsNegative() {
		v.Add("cost", "must be non-negative")
	}
	return v.OrNil()
}

// ConversionEvent is a business outcome (purchase, signup) with an
// associated revenue value. Immutable once ingested.
type ConversionEvent struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customerId"`
	Timestamp      time.Time       `json:"timestamp"`
	Revenue        decimal.Decimal `json:"revenue"`
	ConversionType string          `json:"conversionType"`
}

// Validate checks the required fields for ingestion.
func (c *ConversionEvent) Validate() error {
	v := &ValidationError{}
	if c.CustomerID == "" {
		v.Add("customerId", "required")
	}
	if c.Timestamp.IsZero() {
		v.Add("timestamp", "required")
	}
	if c.Revenue.IsNegative() {
		v.Add("revenue", "must be non-negative")
	}
	return v.OrNil()
}

// Journey is the ordered set of a customer's touchpoints inside the
// attribution window preceding a conversion. A Journey is derived, never
// persisted as its own row. An empty Journey is valid and yields an
// unattributed result.
type Journey struct {
	CustomerID  string
	WindowStart time.Time
	WindowEnd   time.Time
	Touchpoints []*Touchpoint
}

// Empty reports whether the journey contains no touchpoints.
func (j *Journey) Empty() bool { return len(j.Touchpoints) == 0 }

// Len returns the number of touchpoints in the journey.
func (j *Journey) Len() int { return len(j.Touchpoints) }

// SpendRecord is an externally supplied spend figure for a channel or
// campaign over a period. Spend enters the system through ingestion; the
// engine never calls advertising platforms itself.
type SpendRecord struct {
	ID          string          `json:"id"`
	Channel     Channel         `json:"channel"`
	CampaignID  string          `json:"campaignId,omitempty"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   time.Time       `json:"periodEnd"`
	Amount      decimal.Decimal `json:"amount"`
}

// Validate checks the required fields for ingestion.
func (s *SpendRecord) Validate() error {
	v := &ValidationError{}
	if s.Channel == "" && s.CampaignID == "" {
		v.Add("channel", "channel or campaignId required")
	}
	if s.Channel != "" && !s.Channel.Valid() {
		v.Add("channel", "unknown channel")
	}
	if s.PeriodStart.IsZero() || s.PeriodEnd.IsZero() {
		v.Add("period", "periodStart and periodEnd required")
	} else if s.PeriodEnd.Before(s.PeriodStart) {
		v.Add("period", "periodEnd before periodStart")
	}
	if s.Amount.IsNegative() {
		v.Add("amount", "must be non-negative")
	}
	return v.OrNil()
}
