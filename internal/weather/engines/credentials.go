package engines

import (
	"bufio"
	"net/http"
	"os"
	"strings"

	"github.com/i474232898/weather-odds/internal/weather"
)

// EarthdataHost is the login machine looked up in .netrc.
const EarthdataHost = "urs.earthdata.nasa.gov"

// Credentials authenticate requests to NASA Earthdata. A token wins over a
// username/password pair.
type Credentials struct {
	Token    string
	Username string
	Password string
}

func (c Credentials) empty() bool {
	return c.Token == "" && (c.Username == "" || c.Password == "")
}

// Apply sets the Authorization header on req.
func (c Credentials) Apply(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
		return
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
}

// CredentialProvider yields validated credentials.
type CredentialProvider interface {
	Credentials() (Credentials, error)
}

// StaticCredentials returns configured credentials, falling back to the
// netrc file when NetrcPath is set and nothing else is.
type StaticCredentials struct {
	Static    Credentials
	NetrcPath string
}

func (s StaticCredentials) Credentials() (Credentials, error) {
	if !s.Static.empty() {
		return s.Static, nil
	}
	if s.NetrcPath != "" {
		if c, ok := readNetrc(s.NetrcPath, EarthdataHost); ok {
			return c, nil
		}
	}
	return Credentials{}, weather.ErrCredentialsMissing
}

// readNetrc finds login/password for machine in a netrc file.
func readNetrc(path, machine string) (Credentials, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, false
	}
	defer f.Close()

	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		tokens = append(tokens, strings.Fields(line)...)
	}

	var c Credentials
	in := false
	for i := 0; i+1 < len(tokens); i++ {
		switch tokens[i] {
		case "machine":
			if in {
				return c, !c.empty()
			}
			in = tokens[i+1] == machine
			i++
		case "login":
			if in {
				c.Username = tokens[i+1]
			}
			i++
		case "password":
			if in {
				c.Password = tokens[i+1]
			}
			i++
		}
	}
	return c, !c.empty()
}
