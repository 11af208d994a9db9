package catalog

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FilterParams are the named filter fields a caller may supply. Zero values
// mean "not supplied", so a numeric filter of exactly 0 cannot be expressed.
type FilterParams struct {
	Name        string
	Overview    string
	Popularity  float64
	VoteAverage float64
	VoteCount   int64
	ReleaseDate string
	// Genres matches movies having at least one genre with one of these names.
	Genres []string
}

// Filter is a store filter expression built by BuildFilter.
type Filter bson.M

// BuildFilter maps params to a filter. Supplied fields combine with AND;
// name and overview match case-insensitive substrings of the literal text.
func BuildFilter(params FilterParams) Filter {
	f := Filter{}
	if params.Name != "" {
		f["name"] = containsFold(params.Name)
	}
	if params.Overview != "" {
		f["overview"] = containsFold(params.Overview)
	}
	if params.Popularity != 0 {
		f["popularity"] = params.Popularity
	}
	if params.VoteAverage != 0 {
		f["voteAverage"] = params.VoteAverage
	}
	if params.VoteCount != 0 {
		f["voteCount"] = params.VoteCount
	}
	if params.ReleaseDate != "" {
		f["releaseDate"] = params.ReleaseDate
	}
	if len(params.Genres) > 0 {
		f["genres.name"] = bson.M{"$in": params.Genres}
	}
	return f
}

func containsFold(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}
