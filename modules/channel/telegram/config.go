package telegram

import (
	"fmt"
	"net/url"
	"regexp"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Config holds the Telegram approval channel configuration.
type Config struct {
	Token string `yaml:"token"`

	// WebhookURL is the public URL Telegram posts updates to. It must route
	// to the gateway's /webhooks/telegram endpoint.
	WebhookURL string `yaml:"webhook_url"`

	// WebhookSecret is sent back by Telegram in the
	// X-Telegram-Bot-Api-Secret-Token header and verified on every update.
	WebhookSecret string `yaml:"webhook_secret"`

	APIURL string `yaml:"api_url"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
}

// validate checks field constraints beyond basic presence checks.
func (c *Config) validate() error {
	if c.Token != "" && !tokenPattern.MatchString(c.Token) {
		return fmt.Errorf("telegram: token format invalid (expected <bot_id>:<hash>)")
	}

	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL)
		}
	}

	return nil
}
