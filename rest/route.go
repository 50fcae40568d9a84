package rest

import (
	"strings"
)

// Resources whose id is a major parameter. Routes under different major
// parameters never share a rate limit.
var majorResources = map[string]bool{
	"channels": true,
	"guilds":   true,
	"webhooks": true,
}

// Resources followed by a token that is part of the route identity.
var tokenResources = map[string]bool{
	"webhooks":     true,
	"interactions": true,
}

// BucketKey returns the rate limit bucket key of a request: its method and
// route template, with the major parameter kept and other ids replaced.
func BucketKey(method, endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	path = strings.Trim(path, "/")

	original := strings.Split(path, "/")
	segments := make([]string, len(original))
	copy(segments, original)

	for i, segment := range original {
		if i == 0 {
			continue
		}

		previous := original[i-1]

		switch {
		case i == 1 && majorResources[previous]:
			// Major parameter, kept verbatim.
		case i == 2 && tokenResources[original[0]] && isSnowflake(previous):
			if original[0] != "webhooks" {
				segments[i] = ":token"
			}
		case previous == "reactions":
			segments[i] = ":reaction"
		case isSnowflake(segment):
			segments[i] = ":id"
		}
	}

	return strings.ToUpper(method) + " /" + strings.Join(segments, "/")
}

// MajorParameter returns the major parameter of an endpoint, or an empty string.
func MajorParameter(endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) < 2 || !majorResources[segments[0]] {
		return ""
	}

	if segments[0] == "webhooks" && len(segments) >= 3 {
		return segments[1] + "/" + segments[2]
	}

	return segments[1]
}

func isSnowflake(segment string) bool {
	if segment == "" {
		return false
	}

	for i := 0; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}

	return true
}
