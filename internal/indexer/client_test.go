package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"circlepot/internal/domain"
	"circlepot/internal/idhash"
)

const (
	member  = "0x00000000000000000000000000000000000000aa"
	creator = "0x00000000000000000000000000000000000000bb"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func contributionRow(tx string, logIndex int) RawEvent {
	return RawEvent{
		ID:             tx + "-" + strconv.Itoa(logIndex),
		Kind:           string(domain.KindContributionMade),
		CircleID:       "7",
		BlockNumber:    "1200",
		BlockTimestamp: "1700000000",
		User:           strings.ToUpper(member[:2]) + member[2:],
		Round:          intPtr(1),
		Amount:         strPtr("100000000000000000000"),
	}
}

func TestClient_CircleEventsPaginates(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.Contains(req.Query, "CircleEvents") {
			t.Errorf("expected CircleEvents query, got %s", req.Query)
		}
		if req.Variables["circleId"] != "7" {
			t.Errorf("expected circleId 7, got %v", req.Variables["circleId"])
		}

		calls++
		var rows []RawEvent
		switch req.Variables["skip"].(float64) {
		case 0:
			rows = []RawEvent{contributionRow("0xaa", 0), contributionRow("0xaa", 1)}
		case 2:
			rows = []RawEvent{contributionRow("0xbb", 0)}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"circleEvents": rows}})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithPageSize(2))
	rows, err := client.CircleEvents(context.Background(), "7")
	if err != nil {
		t.Fatalf("CircleEvents: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(rows))
	}
	if calls != 2 {
		t.Errorf("expected 2 pages, got %d", calls)
	}
}

func TestClient_GraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "indexer lagging"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.UserEvents(context.Background(), member)
	var gqlErr GraphQLError
	if !errors.As(err, &gqlErr) {
		t.Fatalf("expected GraphQLError, got %v", err)
	}
	if gqlErr.Message != "indexer lagging" {
		t.Errorf("unexpected message %q", gqlErr.Message)
	}

	if _, err := client.UserEvents(context.Background(), "bob"); err == nil {
		t.Error("expected error for invalid user address")
	}
}

func TestClient_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CircleEvents(context.Background(), "7")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestClient_Circle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		if req.Variables["id"] == "404" {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"circle": nil}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"circle": RawCircle{
			ID:                 "7",
			Creator:            creator,
			Title:              "rent",
			ContributionAmount: "100000000000000000000",
			Frequency:          2,
			MaxMembers:         5,
			CurrentMembers:     3,
			Visibility:         1,
			State:              3,
			CreatedAt:          "1700000000",
			StartedAt:          "1700864000",
			CurrentRound:       2,
		}}})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithTimeout(time.Second))

	c, err := client.Circle(context.Background(), "7")
	if err != nil {
		t.Fatalf("Circle: %v", err)
	}
	if c.Frequency != domain.FrequencyMonthly || c.State != domain.StateActive || c.Visibility != domain.VisibilityPublic {
		t.Errorf("unexpected enums: %s %s %s", c.Frequency, c.State, c.Visibility)
	}
	if !c.StartedAt.Equal(time.Unix(1700864000, 0)) {
		t.Errorf("unexpected startedAt %v", c.StartedAt)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("decoded circle invalid: %v", err)
	}

	_, err = client.Circle(context.Background(), "404")
	if !errors.Is(err, ErrCircleNotFound) {
		t.Errorf("expected ErrCircleNotFound, got %v", err)
	}
}

func TestDecode_Contribution(t *testing.T) {
	e, err := Decode(contributionRow("0xAB", 3))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	c, ok := e.(domain.ContributionMade)
	if !ok {
		t.Fatalf("expected ContributionMade, got %T", e)
	}
	if c.ID != idhash.ComputeEventID("0xab", 3) {
		t.Errorf("unexpected id %s", c.ID)
	}
	if c.Member != member {
		t.Errorf("member not normalized: %s", c.Member)
	}
	want, _ := new(big.Int).SetString("100000000000000000000", 10)
	if c.Amount.Cmp(want) != 0 {
		t.Errorf("unexpected amount %s", c.Amount)
	}
	if c.LogIndex != 3 || c.BlockNumber != 1200 {
		t.Errorf("unexpected position %d/%d", c.BlockNumber, c.LogIndex)
	}
}

func TestDecode_VoteAndVoting(t *testing.T) {
	vote := RawEvent{
		ID: "0x01-0", Kind: string(domain.KindVoteCast), CircleID: "7",
		BlockNumber: "10", BlockTimestamp: "1700000000", User: member, Choice: intPtr(2),
	}
	e, err := Decode(vote)
	if err != nil {
		t.Fatalf("Decode vote: %v", err)
	}
	if e.(domain.VoteCast).Choice != domain.VoteWithdraw {
		t.Errorf("expected withdraw choice")
	}

	voting := RawEvent{
		ID: "0x02-0", Kind: string(domain.KindVotingInitiated), CircleID: "7",
		BlockNumber: "11", BlockTimestamp: "1700000000",
		VotingStartAt: strPtr("1700000100"), VotingEndAt: strPtr("1700172900"),
	}
	e, err = Decode(voting)
	if err != nil {
		t.Fatalf("Decode voting: %v", err)
	}
	if got := e.(domain.VotingInitiated).StartedAt(); !got.Equal(time.Unix(1700000100, 0)) {
		t.Errorf("unexpected voting start %v", got)
	}
}

func TestDecode_MalformedRowsAreWarnings(t *testing.T) {
	bad := []RawEvent{
		{ID: "no-log-index-x", Kind: string(domain.KindMemberJoined)},
		func() RawEvent { r := contributionRow("0xcc", 0); r.Amount = strPtr("1.5"); return r }(),
		func() RawEvent { r := contributionRow("0xcc", 1); r.User = "carol"; return r }(),
		func() RawEvent { r := contributionRow("0xcc", 2); r.BlockTimestamp = ""; return r }(),
		func() RawEvent { r := contributionRow("0xcc", 3); r.Kind = "Mystery"; return r }(),
		func() RawEvent { r := contributionRow("0xcc", 4); r.Round = nil; return r }(),
	}

	events, warnings := DecodeAll(append(bad, contributionRow("0xdd", 0)))
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
	if len(warnings) != len(bad) {
		t.Fatalf("expected %d warnings, got %d", len(bad), len(warnings))
	}
	for _, w := range warnings {
		if !errors.Is(w, domain.ErrDataIntegrity) {
			t.Errorf("warning %v does not wrap ErrDataIntegrity", w)
		}
	}
}

func TestDecode_MissingKindFieldsAreWarnings(t *testing.T) {
	base := func(kind domain.EventKind) RawEvent {
		return RawEvent{
			ID: "0x03-0", Kind: string(kind), CircleID: "7",
			BlockNumber: "12", BlockTimestamp: "1700000000", User: member,
		}
	}
	bptr := func(b bool) *bool { return &b }

	executed := base(domain.KindVoteExecuted)
	executed.User = ""
	executed.StartVotes = intPtr(2)
	executed.WithdrawVotes = intPtr(1)

	noVotes := base(domain.KindVoteExecuted)
	noVotes.User = ""
	noVotes.CircleStarted = bptr(true)

	tests := []struct {
		name  string
		row   RawEvent
		field string
	}{
		{"vote executed without outcome", executed, "circleStarted"},
		{"vote executed without tally", noVotes, "startVotes"},
		{"vote cast without choice", base(domain.KindVoteCast), "choice"},
		{"position assigned without position", base(domain.KindPositionAssigned), "position"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Decode(tt.row)
			if e != nil {
				t.Fatalf("expected row to be dropped, got %+v", e)
			}
			var w *domain.IntegrityWarning
			if !errors.As(err, &w) {
				t.Fatalf("expected IntegrityWarning, got %v", err)
			}
			if w.Reason != "missing "+tt.field {
				t.Errorf("unexpected reason %q", w.Reason)
			}
		})
	}

	executed.CircleStarted = bptr(false)
	e, err := Decode(executed)
	if err != nil {
		t.Fatalf("Decode complete VoteExecuted: %v", err)
	}
	if e.(domain.VoteExecuted).CircleStarted {
		t.Error("expected failed start vote")
	}
}
