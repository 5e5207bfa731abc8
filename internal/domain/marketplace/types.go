// Package marketplace holds the read-only entities decoded from the
// marketplace contract.
package marketplace

// Product is a listing as stored by the contract.
type Product struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Price is in the unit the contract stores (STX as displayed by the UI).
	Price uint64 `json:"price"`
}

// MemberProfile is a member's role and standing.
type MemberProfile struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

// Reputation is a member's trust score. It is fetched separately from the
// profile.
type Reputation struct {
	Score uint64 `json:"score"`
}

// Profile is what the profile view shows: the profile record plus the
// reputation score, which defaults to zero when it could not be read.
type Profile struct {
	Address    string        `json:"address"`
	Member     MemberProfile `json:"member"`
	Reputation Reputation    `json:"reputation"`
	// ReputationError is set when the score fell back to zero.
	ReputationError string `json:"reputation_error,omitempty"`
}
