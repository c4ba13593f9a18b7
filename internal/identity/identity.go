// Package identity resolves a military identity from the inserted CAC and,
// when configured, the directory. Certificate fields are authoritative; the
// directory only contributes rank and a missing title.
package identity

import (
	"mfrid/internal/directory"
	"mfrid/internal/directory/rank"
	"mfrid/internal/smartcard/certificate"
	"mfrid/internal/smartcard/probe"
)

// Identity is the resolved record handed to the memorandum generator.
type Identity struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	MiddleInitial string `json:"middleInitial"`
	FullName      string `json:"fullName"`
	Branch        string `json:"branch"`
	Affiliation   string `json:"affiliation"`
	UID           string `json:"uid"`
	Rank          string `json:"rank"`
	Title         string `json:"title"`

	DirectoryEnriched bool `json:"-"`
}

// FallbackIdentity is the placeholder served alongside every failure so the
// form stays usable offline. It is never presented as a real read.
type FallbackIdentity struct {
	Name        string `json:"name"`
	Rank        string `json:"rank"`
	Title       string `json:"title"`
	Affiliation string `json:"affiliation"`
	UID         string `json:"uid"`
}

// Fallback returns the fixed placeholder identity.
func Fallback() FallbackIdentity {
	return FallbackIdentity{
		Name:        "JANE SMITH",
		Rank:        "Maj",
		Title:       "Deputy Commander",
		Affiliation: "652D AIR OPERATIONS CENTER",
		UID:         "123456789",
	}
}

// Resolution is the outcome of one attempt. Exactly one of Identity and Err
// is set.
type Resolution struct {
	Identity *Identity
	Err      *ResolutionError

	Probe              probe.Result
	DirectoryAvailable bool
	DirectoryFound     bool
	// Warnings lists non-terminal categories hit along the way.
	Warnings []Category
}

// Succeeded reports whether an identity was resolved.
func (r Resolution) Succeeded() bool {
	return r.Err == nil && r.Identity != nil
}

// Category returns the terminal category, or "" on success.
func (r Resolution) Category() Category {
	if r.Err == nil {
		return ""
	}
	return r.Err.Category
}

// Merge combines a parsed subject with an optional directory record.
// Certificate-derived fields are never overwritten.
func Merge(subject *certificate.Subject, rec *directory.Record) *Identity {
	id := &Identity{
		FirstName:     subject.FirstName,
		LastName:      subject.LastName,
		MiddleInitial: subject.MiddleInitial,
		FullName:      subject.FullName,
		Branch:        subject.Branch,
		Affiliation:   subject.Organization,
		UID:           subject.UID,
	}
	if rec == nil {
		return id
	}

	id.Rank = string(rank.Extract(rec.Title))
	if id.Title == "" && rec.Title != "" {
		id.Title = rec.Title
	}
	id.DirectoryEnriched = id.Rank != ""
	return id
}
