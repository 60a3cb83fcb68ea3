package models

import "time"

// TrackMeta identifies one audio track within a mixtape. An empty Title
// means the track's metadata is still loading.
type TrackMeta struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	LengthSeconds float64 `json:"lengthSeconds"`
}

// Loading reports whether the track is still waiting on metadata.
func (t TrackMeta) Loading() bool {
	return t.Title == ""
}

// Attribute is a single NFT trait entry.
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// ExtendedJSONMetadata is the off-chain JSON document an asset points to.
// Display fields are pointers so that an absent field can be told apart
// from an empty one.
type ExtendedJSONMetadata struct {
	Name         *string                `json:"name,omitempty"`
	Symbol       *string                `json:"symbol,omitempty"`
	Description  *string                `json:"description,omitempty"`
	Image        *string                `json:"image,omitempty"`
	ExternalURL  *string                `json:"external_url,omitempty"`
	AnimationURL *string                `json:"animation_url,omitempty"`
	Attributes   []Attribute            `json:"attributes,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
	Tracks       []TrackMeta            `json:"tracks,omitempty"`
}

// AssetContent holds the off-chain pointer of an on-chain asset.
type AssetContent struct {
	JSONURI  string                 `json:"json_uri"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Asset is the on-chain record for a mixtape NFT.
type Asset struct {
	ID      string       `json:"id"`
	Content AssetContent `json:"content"`
}

// ReadMetaResponse is the body of GET /api/nft/read-meta.
type ReadMetaResponse struct {
	Asset *Asset `json:"asset"`
}

// Draft is a mixtape being assembled before it is minted.
type Draft struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Image       string      `json:"image,omitempty"`
	Tracks      []TrackMeta `json:"tracks"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// DraftSummary is one row of the draft listing.
type DraftSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TrackCount int       `json:"trackCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
