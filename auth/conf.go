package auth

import "golang.org/x/oauth2/clientcredentials"

// Conf selects how outbound requests to the FMS and the control platform
// authenticate. A non-empty TokenURL enables the OAuth2 client credentials
// flow, otherwise User and Password enable basic auth.
type Conf struct {
	User         string   `json:"user"`
	Password     string   `json:"password"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
}

// New returns the Authorizer described by conf.
func New(conf Conf) Authorizer {
	switch {
	case conf.TokenURL != "":
		return NewClientCred(conf)
	case conf.User != "":
		return Basic{User: conf.User, Password: conf.Password}
	}
	return None{}
}
