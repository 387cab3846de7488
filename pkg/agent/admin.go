package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/botronka/botronka/pkg/people"
)

// AdminIntentKind classifies a locally-handled admin request.
type AdminIntentKind string

const (
	AdminNone          AdminIntentKind = "none"
	AdminPromote       AdminIntentKind = "promote"
	AdminRegisterGuest AdminIntentKind = "register_guest"
)

// AdminIntent is a promote/register request recognized directly from
// the user's words, bypassing the LLM.
type AdminIntent struct {
	Kind       AdminIntentKind
	Name       string
	TrustLevel string
}

var (
	promoteRe = regexp.MustCompile(`(?i)\bpromote\s+["']?([a-zA-Z][\w\- ]{0,30})["']?\s+to\s+(friend|owner)\b`)

	registerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bregister\s+me\s+as\s+["']?([a-zA-Z][\w\- ]{0,30})["']?\b`),
		regexp.MustCompile(`(?i)\bmy\s+name\s+is\s+["']?([a-zA-Z][\w\- ]{0,30})["']?\b`),
	}
)

// ParseAdminIntent recognizes promote and self-registration phrasing.
func ParseAdminIntent(text string) AdminIntent {
	text = strings.TrimSpace(text)
	if text == "" {
		return AdminIntent{Kind: AdminNone}
	}

	if m := promoteRe.FindStringSubmatch(text); m != nil {
		level := "Friend"
		if strings.EqualFold(m[2], "owner") {
			level = "OWNER"
		}
		return AdminIntent{
			Kind:       AdminPromote,
			Name:       strings.Trim(m[1], ` "'`),
			TrustLevel: level,
		}
	}

	for _, re := range registerRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return AdminIntent{
				Kind:       AdminRegisterGuest,
				Name:       strings.Trim(m[1], ` "'`),
				TrustLevel: "Guest",
			}
		}
	}

	return AdminIntent{Kind: AdminNone}
}

// NormalizeTrustLevel maps a loose user-typed level to its canonical
// literal, or "" when unrecognized.
func NormalizeTrustLevel(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "guest":
		return "Guest"
	case "friend":
		return "Friend"
	case "owner":
		return "OWNER"
	}
	return ""
}

// PromotePerson updates the trust map for a person who already exists
// in the face database. Unknown names and unknown levels are refused.
func PromotePerson(name, targetLevel string, trustMap, faceDB *people.Table) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name cannot be empty")
	}

	level := NormalizeTrustLevel(targetLevel)
	if level == "" {
		return "", fmt.Errorf("invalid trust level %q", targetLevel)
	}

	known, err := faceDB.Has(name)
	if err != nil {
		return "", fmt.Errorf("cannot read face DB: %w", err)
	}
	if !known {
		return "", fmt.Errorf("%s is not registered in face DB", name)
	}

	if err := trustMap.SetString(name, level); err != nil {
		return "", fmt.Errorf("cannot update trust map: %w", err)
	}
	return fmt.Sprintf("%s promoted to %s", name, level), nil
}
