// Package cli implements the corosdown and corosup command-line tools.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// Credentials holds the login inputs shared by both tools.
type Credentials struct {
	Username    string
	Password    string
	AccessToken string
}

// Resolve fills missing credentials from COROS_USERNAME, COROS_PASSWORD and
// COROS_ACCESS_TOKEN, then prompts interactively for whatever is still
// missing. A supplied access token suppresses the prompts; username and
// password stay available as the login fallback.
func (c *Credentials) Resolve() error {
	viper.SetEnvPrefix("coros")
	_ = viper.BindEnv("username")
	_ = viper.BindEnv("password")
	_ = viper.BindEnv("access_token")

	if c.Username == "" {
		c.Username = viper.GetString("username")
	}
	if c.Password == "" {
		c.Password = viper.GetString("password")
	}
	if c.AccessToken == "" {
		c.AccessToken = viper.GetString("access_token")
	}

	if c.AccessToken != "" {
		return nil
	}

	if c.Username == "" {
		fmt.Fprint(os.Stderr, "COROS Training Center Username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		c.Username = strings.TrimSpace(line)
	}
	if c.Password == "" {
		fmt.Fprint(os.Stderr, "COROS Training Center Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		c.Password = string(pw)
	}
	return nil
}

// addCredentialFlags registers the flags both tools share.
func (c *Credentials) addCredentialFlags(f *pflag.FlagSet) {
	f.StringVarP(&c.Username, "username", "u", "", "COROS Training Center username (email)")
	f.StringVarP(&c.Password, "password", "p", "", "COROS Training Center password")
	f.StringVarP(&c.AccessToken, "access-token", "T", "", "Access token or CPL-coros-token cookie value")
}
