// Package identity is the adapter for the kirbook auth service, a SOAP-style
// request/response RPC over HTTP. The envelope framing lives entirely in this
// package; the orchestrator only sees the app.IdentityGateway port, so the
// transport can be swapped without touching orchestration logic.
package identity

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lymian/kirbook-pedido-rest/internal/order/app"
)

const defaultTimeout = 5 * time.Second

// Client implements app.IdentityGateway. It performs no retries; retry
// policy, if any, belongs to the caller.
type Client struct {
	hc       *http.Client
	endpoint string
}

var _ app.IdentityGateway = (*Client)(nil)

func NewClient(endpoint string) *Client {
	return &Client{
		hc:       &http.Client{Timeout: defaultTimeout},
		endpoint: endpoint,
	}
}

type envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    body     `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type body struct {
	Inner any `xml:",any"`
}

type validateTokenRequest struct {
	XMLName xml.Name `xml:"ValidateTokenRequest"`
	Token   string   `xml:"token"`
}

type validateTokenResponse struct {
	XMLName    xml.Name `xml:"ValidateTokenResponse"`
	Valid      bool     `xml:"valid"`
	SubjectID  string   `xml:"subjectId"`
	Username   string   `xml:"username"`
	Email      string   `xml:"email"`
	GivenName  string   `xml:"givenName"`
	FamilyName string   `xml:"familyName"`
	Role       string   `xml:"role"`
}

type getUserByIDRequest struct {
	XMLName xml.Name `xml:"GetUserByIdRequest"`
	ID      string   `xml:"id"`
}

type getUserByIDResponse struct {
	XMLName  xml.Name `xml:"GetUserByIdResponse"`
	Exists   bool     `xml:"exists"`
	ID       string   `xml:"id"`
	Username string   `xml:"username"`
	Email    string   `xml:"email"`
	Role     string   `xml:"role"`
}

// ValidateToken asks the auth service whether the token is valid and who it
// belongs to. A well-formed valid=false response is a normal result; only
// transport failures and unparseable responses are errors.
func (c *Client) ValidateToken(ctx context.Context, token string) (app.AuthContext, error) {
	var resp validateTokenResponse
	if err := c.call(ctx, validateTokenRequest{Token: token}, &resp); err != nil {
		return app.AuthContext{}, err
	}
	return app.AuthContext{
		SubjectID:  resp.SubjectID,
		Username:   resp.Username,
		Email:      resp.Email,
		GivenName:  resp.GivenName,
		FamilyName: resp.FamilyName,
		Role:       app.Role(resp.Role),
		Valid:      resp.Valid,
	}, nil
}

// LookupUser fetches display data for a user id. exists=false maps to
// app.ErrUserNotFound.
func (c *Client) LookupUser(ctx context.Context, id string) (app.UserRecord, error) {
	var resp getUserByIDResponse
	if err := c.call(ctx, getUserByIDRequest{ID: id}, &resp); err != nil {
		return app.UserRecord{}, err
	}
	if !resp.Exists {
		return app.UserRecord{}, fmt.Errorf("%w: %s", app.ErrUserNotFound, id)
	}
	return app.UserRecord{
		ID:       resp.ID,
		Username: resp.Username,
		Email:    resp.Email,
		Role:     app.Role(resp.Role),
	}, nil
}

// call wraps the request in an envelope, posts it, and decodes the response
// body into out. The response element name routes decoding: the ",any" rule
// on body.Inner picks up whatever single element the service returned.
func (c *Client) call(ctx context.Context, in, out any) error {
	payload, err := xml.Marshal(envelope{Body: body{Inner: in}})
	if err != nil {
		return fmt.Errorf("identity: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", app.ErrIdentityUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", app.ErrIdentityUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", app.ErrIdentityUnreachable, resp.StatusCode)
	}

	var env struct {
		XMLName xml.Name `xml:"Envelope"`
		Body    struct {
			Raw []byte `xml:",innerxml"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", app.ErrIdentityMalformed, err)
	}
	if err := xml.Unmarshal(env.Body.Raw, out); err != nil {
		return fmt.Errorf("%w: %v", app.ErrIdentityMalformed, err)
	}
	return nil
}
