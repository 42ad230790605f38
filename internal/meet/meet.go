// Package meet mints join credentials for video meetings attached to meet
// invites. LiveKit creates rooms on demand when the first participant
// connects, so issuing a token is all the server has to do.
package meet

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// JoinInfo contains what a client needs to join a meeting room.
type JoinInfo struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// Issuer mints LiveKit access tokens.
type Issuer struct {
	apiKey    string
	apiSecret string
	wsURL     string
}

// NewIssuer creates an issuer. With empty credentials the issuer is
// disabled and meet invites go out without join info.
func NewIssuer(apiKey, apiSecret, wsURL string) *Issuer {
	return &Issuer{apiKey: apiKey, apiSecret: apiSecret, wsURL: wsURL}
}

// Enabled reports whether credentials are configured.
func (i *Issuer) Enabled() bool {
	return i.apiKey != "" && i.apiSecret != ""
}

// Issue creates join credentials for userID to enter the given room.
func (i *Issuer) Issue(room string, userID int64, name string) (*JoinInfo, error) {
	identity := fmt.Sprintf("user-%d", userID)

	at := auth.NewAccessToken(i.apiKey, i.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &JoinInfo{
		URL:      i.wsURL,
		Token:    token,
		Room:     room,
		Identity: identity,
	}, nil
}
