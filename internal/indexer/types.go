package indexer

// RawEvent is one event row as served by the indexer. Numeric ledger values
// arrive as decimal strings (GraphQL BigInt); optional fields are absent for
// kinds that do not carry them.
type RawEvent struct {
	ID              string `json:"id"` // "<txHash>-<logIndex>"
	Kind            string `json:"kind"`
	CircleID        string `json:"circleId"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	BlockTimestamp  string `json:"blockTimestamp"` // unix seconds

	User         string `json:"user"`
	Counterparty string `json:"counterparty,omitempty"`

	Round         *int    `json:"round,omitempty"`
	Amount        *string `json:"amount,omitempty"`
	Position      *int    `json:"position,omitempty"`
	Choice        *int    `json:"choice,omitempty"` // 1 start, 2 withdraw
	CircleStarted *bool   `json:"circleStarted,omitempty"`
	StartVotes    *int    `json:"startVotes,omitempty"`
	WithdrawVotes *int    `json:"withdrawVotes,omitempty"`
	VotingStartAt *string `json:"votingStartAt,omitempty"`
	VotingEndAt   *string `json:"votingEndAt,omitempty"`
}

// RawCircle is the circle summary row. Enums are ledger ordinals.
type RawCircle struct {
	ID                 string `json:"id"`
	Creator            string `json:"creator"`
	Title              string `json:"title"`
	ContributionAmount string `json:"contributionAmount"`
	Frequency          int    `json:"frequency"`
	MaxMembers         int    `json:"maxMembers"`
	CurrentMembers     int    `json:"currentMembers"`
	Visibility         int    `json:"visibility"`
	State              int    `json:"state"`
	CreatedAt          string `json:"createdAt"`
	StartedAt          string `json:"startedAt"`
	CurrentRound       int    `json:"currentRound"`
	YieldEnabled       bool   `json:"yieldEnabled"`
}

const eventFields = `
	id
	kind
	circleId
	transactionHash
	blockNumber
	blockTimestamp
	user
	counterparty
	round
	amount
	position
	choice
	circleStarted
	startVotes
	withdrawVotes
	votingStartAt
	votingEndAt
`

const circleEventsQuery = `query CircleEvents($circleId: String!, $first: Int!, $skip: Int!) {
	circleEvents(where: {circleId: $circleId}, first: $first, skip: $skip, orderBy: blockNumber) {` + eventFields + `}
}`

const userEventsQuery = `query UserEvents($user: String!, $first: Int!, $skip: Int!) {
	circleEvents(where: {user: $user}, first: $first, skip: $skip, orderBy: blockNumber) {` + eventFields + `}
}`

const circleQuery = `query Circle($id: ID!) {
	circle(id: $id) {
		id
		creator
		title
		contributionAmount
		frequency
		maxMembers
		currentMembers
		visibility
		state
		createdAt
		startedAt
		currentRound
		yieldEnabled
	}
}`

const newEventsSubscription = `subscription NewEvents($circleIds: [String!]!) {
	circleEvents(where: {circleId_in: $circleIds}) {` + eventFields + `}
}`
