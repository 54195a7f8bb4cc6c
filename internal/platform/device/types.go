package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the function a device plays inside a zone.
type Role string

const (
	RoleEntry  Role = "entry"
	RoleExit   Role = "exit"
	RoleNotify Role = "notify"
)

var Roles = []Role{RoleEntry, RoleExit, RoleNotify}

var ErrMalformedPayload = errors.New("malformed device payload")

// StatusError is returned for non-2xx device responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device responded %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != 408 && e.Code != 429
}

// Target addresses one device endpoint of a zone.
type Target struct {
	ZoneID   int64
	Role     Role
	BaseURL  string
	Username string
	Password string
}

// Event is a matched presence event reported by a device.
type Event struct {
	WorkerID   int64
	Time       time.Time
	VerifyMode string
}

// Verified reports whether the event came from a face or card match.
func (e Event) Verified() bool {
	mode := strings.ToLower(e.VerifyMode)
	return strings.Contains(mode, "face") || strings.Contains(mode, "card")
}

type Query struct {
	SearchID string
	Since    time.Time
	Until    time.Time
	Position int
}

type Page struct {
	Events       []Event
	HasMore      bool
	NextPosition int
	Total        int
}

type searchRequest struct {
	Cond searchCond `json:"AcsEventCond"`
}

type searchCond struct {
	SearchID   string `json:"searchID"`
	Position   int    `json:"searchResultPosition"`
	MaxResults int    `json:"maxResults"`
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
}

type searchResponse struct {
	Event *searchResult `json:"AcsEvent"`
}

type searchResult struct {
	SearchID     string      `json:"searchID"`
	Status       string      `json:"responseStatusStrg"`
	NumOfMatches int         `json:"numOfMatches"`
	TotalMatches int         `json:"totalMatches"`
	InfoList     []eventInfo `json:"InfoList"`
}

type eventInfo struct {
	EmployeeNo string `json:"employeeNoString"`
	Time       string `json:"time"`
	VerifyMode string `json:"currentVerifyMode"`
}

const (
	statusMore    = "MORE"
	statusOK      = "OK"
	statusNoMatch = "NO MATCH"

	majorAccessEvent = 5
)
