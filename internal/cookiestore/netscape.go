package cookiestore

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opfetch/opfetch/pkg/fetchlib"
)

// ParseNetscape reads cookies from a Netscape-format cookie text file.
// Lines starting with # are skipped, except #HttpOnly_ which is stripped.
// Malformed lines are skipped with a warning log.
func ParseNetscape(filePath string) ([]fetchlib.Cookie, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error: cannot open Netscape cookie file: %w", err)
	}
	defer f.Close()

	now := time.Now()
	var cookies []fetchlib.Cookie

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#HttpOnly_") {
			line = line[len("#HttpOnly_"):]
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		// Tab-separated, exactly 7 fields
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			log.Printf("warning: skipping malformed Netscape cookie line: %q", line)
			continue
		}

		domain := fields[0]
		// fields[1] is the subdomain flag, implied by a leading dot
		path := fields[2]
		secure := strings.EqualFold(fields[3], "TRUE")
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			log.Printf("warning: skipping cookie with invalid expiry: %q", fields[4])
			continue
		}
		name := fields[5]
		value := fields[6]

		if expiry > 0 && time.Unix(expiry, 0).Before(now) {
			continue
		}

		c := fetchlib.Cookie{
			Name:   name,
			Value:  value,
			Domain: strings.TrimPrefix(domain, "."),
			Path:   path,
			Secure: secure,
		}
		if expiry > 0 {
			c.Expires = time.Unix(expiry, 0)
		}
		cookies = append(cookies, c)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error: failed to read Netscape cookie file: %w", err)
	}

	return cookies, nil
}
