package domain

import "time"

type CallType string

const (
	CallTypeInbound  CallType = "inbound"
	CallTypeOutbound CallType = "outbound"
)

type Sentiment string

const (
	SentimentFrustrated Sentiment = "frustrated"
	SentimentNeutral    Sentiment = "neutral"
	SentimentSatisfied  Sentiment = "satisfied"
	SentimentAngry      Sentiment = "angry"
	SentimentConfused   Sentiment = "confused"
)

type IssueComplexity string

const (
	ComplexityLow    IssueComplexity = "low"
	ComplexityMedium IssueComplexity = "medium"
	ComplexityHigh   IssueComplexity = "high"
)

type ExperienceLevel string

const (
	ExperienceJunior ExperienceLevel = "junior"
	ExperienceMid    ExperienceLevel = "mid"
	ExperienceSenior ExperienceLevel = "senior"
)

type Speaker string

const (
	SpeakerAgent    Speaker = "agent"
	SpeakerCustomer Speaker = "customer"
)

type ResolutionStatus string

const (
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionEscalated  ResolutionStatus = "escalated"
	ResolutionPending    ResolutionStatus = "pending"
	ResolutionUnresolved ResolutionStatus = "unresolved"
)

var (
	CallTypes          = []CallType{CallTypeInbound, CallTypeOutbound}
	Sentiments         = []Sentiment{SentimentFrustrated, SentimentNeutral, SentimentSatisfied, SentimentAngry, SentimentConfused}
	ResolutionStatuses = []ResolutionStatus{ResolutionResolved, ResolutionEscalated, ResolutionPending, ResolutionUnresolved}
)

type CustomerProfile struct {
	Name            string          `json:"name"`
	Age             int             `json:"age"`
	Sentiment       Sentiment       `json:"sentiment" enum:"frustrated,neutral,satisfied,angry,confused"`
	IssueComplexity IssueComplexity `json:"issueComplexity" enum:"low,medium,high"`
}

type AgentProfile struct {
	Name            string          `json:"name"`
	Department      string          `json:"department"`
	ExperienceLevel ExperienceLevel `json:"experienceLevel" enum:"junior,mid,senior"`
}

type ConversationTurn struct {
	Speaker   Speaker `json:"speaker" enum:"agent,customer"`
	Text      string  `json:"text"`
	Timestamp *string `json:"timestamp,omitempty"`
}

type TranscriptMetadata struct {
	DurationSeconds     int              `json:"durationSeconds"`
	ResolutionStatus    ResolutionStatus `json:"resolutionStatus" enum:"resolved,escalated,pending,unresolved"`
	CSATScore           *int             `json:"csatScore" required:"false" nullable:"true"`
	CallReasonPrimary   string           `json:"callReasonPrimary"`
	CallReasonSecondary *string          `json:"callReasonSecondary,omitempty"`
	Escalated           bool             `json:"escalated"`
}

type Transcript struct {
	ID           string             `json:"id"`
	Industry     string             `json:"industry"`
	Scenario     string             `json:"scenario"`
	CallType     CallType           `json:"callType" enum:"inbound,outbound"`
	Customer     CustomerProfile    `json:"customer"`
	Agent        AgentProfile       `json:"agent"`
	Conversation []ConversationTurn `json:"conversation"`
	Metadata     TranscriptMetadata `json:"metadata"`
	CreatedAt    string             `json:"createdAt" format:"date-time"`
}

// TimeLayout keeps stored timestamps fixed-width so they sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp formats t in UTC using TimeLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
