package utils

import (
	"errors"
	"strings"

	"github.com/keygate-dev/keygate/internal/config"
)

// ParseUsers parses a comma separated list of username:bcrypt-hash[:roles]
// entries; roles are pipe separated.
func ParseUsers(users string) ([]config.User, error) {
	var usersParsed []config.User

	users = strings.TrimSpace(users)

	if users == "" {
		return []config.User{}, nil
	}

	userList := strings.Split(users, ",")

	for _, user := range userList {
		if strings.TrimSpace(user) == "" {
			continue
		}
		parsed, err := ParseUser(strings.TrimSpace(user))
		if err != nil {
			return []config.User{}, err
		}
		usersParsed = append(usersParsed, parsed)
	}

	return usersParsed, nil
}

func ParseUser(user string) (config.User, error) {
	// Compose files escape dollar signs in bcrypt hashes
	if strings.Contains(user, "$$") {
		user = strings.ReplaceAll(user, "$$", "$")
	}

	userSplit := strings.Split(user, ":")

	if len(userSplit) < 2 || len(userSplit) > 3 {
		return config.User{}, errors.New("invalid user format")
	}

	for _, userPart := range userSplit {
		if strings.TrimSpace(userPart) == "" {
			return config.User{}, errors.New("invalid user format")
		}
	}

	parsed := config.User{
		Username:     strings.TrimSpace(userSplit[0]),
		PasswordHash: strings.TrimSpace(userSplit[1]),
	}

	if len(userSplit) == 3 {
		for _, role := range strings.Split(userSplit[2], "|") {
			if strings.TrimSpace(role) == "" {
				continue
			}
			parsed.Roles = append(parsed.Roles, strings.TrimSpace(role))
		}
	}

	return parsed, nil
}

// GetUsers merges inline users with a users file, either may be empty.
func GetUsers(conf string, file string) ([]config.User, error) {
	var users string

	if conf == "" && file == "" {
		return []config.User{}, nil
	}

	if conf != "" {
		users += conf
	}

	if file != "" {
		contents, err := ReadFile(file)
		if err != nil {
			return []config.User{}, err
		}
		if users != "" {
			users += ","
		}
		users += ParseFileToLine(contents)
	}

	return ParseUsers(users)
}

func ParseFileToLine(content string) string {
	lines := strings.Split(content, "\n")
	entries := make([]string, 0)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, strings.TrimSpace(line))
	}

	return strings.Join(entries, ",")
}
