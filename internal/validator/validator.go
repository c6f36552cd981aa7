package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var userNameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.-]+$`)

func UserName(userName string) error {
	length := utf8.RuneCountInString(userName)
	if length == 0 {
		return fmt.Errorf("empty_username")
	} else if length > 80 {
		return fmt.Errorf("long_username")
	}

	if !userNameRegex.MatchString(userName) {
		return fmt.Errorf("bad_format")
	}

	return nil
}

func Password(password string) error {
	if password == "" {
		return fmt.Errorf("empty_password")
	}

	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return fmt.Errorf("long_password")
	}

	return nil
}

// Title checks the name of a group or channel.
func Title(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("empty_name")
	} else if utf8.RuneCountInString(trimmed) > 100 {
		return fmt.Errorf("long_name")
	}
	return nil
}

// Query checks a search string.
func Query(query string) error {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < 2 {
		return fmt.Errorf("short_query")
	}
	return nil
}
