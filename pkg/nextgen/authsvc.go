package nextgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const authServicesBasePath = "/auth-services"

// MFA delivery methods accepted by InitiateMFA.
const (
	MFAMethodSMS   = "sms"
	MFAMethodEmail = "email"
	MFAMethodApp   = "app"
	MFAMethodVoice = "voice"
)

var validMFAMethods = map[string]bool{
	MFAMethodSMS:   true,
	MFAMethodEmail: true,
	MFAMethodApp:   true,
	MFAMethodVoice: true,
}

// AuthService wraps the /auth-services endpoints (IdenTrust challenges,
// MFA and session management).
type AuthService struct {
	d      *Dispatcher
	logger *zap.Logger
}

// Challenge is an IdenTrust challenge as returned by send/verify/status.
type Challenge struct {
	ChallengeID string          `json:"challenge_id"`
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	ExpiresAt   string          `json:"expires_at"`
	Raw         json.RawMessage `json:"-"`
}

// MFASession is the result of InitiateMFA.
type MFASession struct {
	SessionID string          `json:"session_id"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ExpiresAt string          `json:"expires_at"`
	Raw       json.RawMessage `json:"-"`
}

// MFAVerification is the result of VerifyMFACode.
type MFAVerification struct {
	Verified bool            `json:"verified"`
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Raw      json.RawMessage `json:"-"`
}

// SessionStatus is the result of ValidateSession.
type SessionStatus struct {
	Valid     bool            `json:"valid"`
	UserID    string          `json:"user_id"`
	ExpiresAt string          `json:"expires_at"`
	Raw       json.RawMessage `json:"-"`
}

// AuthMethod is one authentication method available to a user.
type AuthMethod struct {
	Type    string          `json:"type"`
	Name    string          `json:"name"`
	Enabled bool            `json:"enabled"`
	Raw     json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts either an object or a bare method name.
func (m *AuthMethod) UnmarshalJSON(b []byte) error {
	raw := append(json.RawMessage(nil), b...)
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*m = AuthMethod{Type: name, Name: name, Enabled: true, Raw: raw}
		return nil
	}
	type alias AuthMethod
	a := alias{Enabled: true}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*m = AuthMethod(a)
	m.Raw = raw
	return nil
}

// SendIdentrustChallenge asks IdenTrust to issue a new challenge.
func (s *AuthService) SendIdentrustChallenge(ctx context.Context) (*Challenge, error) {
	var out Challenge
	raw, err := s.call(ctx, "auth.send_identrust_challenge", http.MethodGet, "identrust-mas/send-challenge", nil, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// VerifyIdentityChallenge submits the response to a challenge.
func (s *AuthService) VerifyIdentityChallenge(ctx context.Context, challengeID string, response map[string]any) (*Challenge, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, validationError("challenge_id is required")
	}
	if len(response) == 0 {
		return nil, validationError("response data is required")
	}
	var out Challenge
	raw, err := s.call(ctx, "auth.verify_identity_challenge", http.MethodPost,
		"identrust-mas/verify-challenge/"+url.PathEscape(challengeID), response, &out)
	if err != nil {
		return nil, err
	}
	if out.ChallengeID == "" {
		out.ChallengeID = challengeID
	}
	out.Raw = raw
	return &out, nil
}

// ChallengeStatus reports the state of a challenge.
func (s *AuthService) ChallengeStatus(ctx context.Context, challengeID string) (*Challenge, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, validationError("challenge_id is required")
	}
	var out Challenge
	raw, err := s.call(ctx, "auth.challenge_status", http.MethodGet,
		"identrust-mas/challenge-status/"+url.PathEscape(challengeID), nil, &out)
	if err != nil {
		return nil, err
	}
	if out.ChallengeID == "" {
		out.ChallengeID = challengeID
	}
	out.Raw = raw
	return &out, nil
}

// InitiateMFA starts an MFA flow for userID. An empty method means SMS.
func (s *AuthService) InitiateMFA(ctx context.Context, userID, method string) (*MFASession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user identifier is required")
	}
	if method == "" {
		method = MFAMethodSMS
	}
	if !validMFAMethods[method] {
		return nil, validationError("invalid MFA method %q (want sms, email, app or voice)", method)
	}

	var out MFASession
	raw, err := s.call(ctx, "auth.initiate_mfa", http.MethodPost, "mfa/initiate",
		map[string]string{"user_identifier": userID, "method": method}, &out)
	if err != nil {
		return nil, err
	}
	if out.Method == "" {
		out.Method = method
	}
	out.Raw = raw
	return &out, nil
}

// VerifyMFACode checks a code against an MFA session.
func (s *AuthService) VerifyMFACode(ctx context.Context, sessionID, code string) (*MFAVerification, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationError("session_id is required")
	}
	if strings.TrimSpace(code) == "" {
		return nil, validationError("verification code is required")
	}
	var out MFAVerification
	raw, err := s.call(ctx, "auth.verify_mfa_code", http.MethodPost, "mfa/verify",
		map[string]string{"session_id": sessionID, "code": code}, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// AuthMethods lists the methods available to userID. A payload that is not
// a list yields an empty slice.
func (s *AuthService) AuthMethods(ctx context.Context, userID string) ([]AuthMethod, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user identifier is required")
	}
	resp, err := s.d.Execute(ctx, Request{
		Name:     "auth.methods",
		Method:   http.MethodGet,
		Endpoint: authServicesBasePath + "/methods/" + url.PathEscape(userID),
	})
	if err != nil {
		return nil, err
	}
	if !resp.JSON || !isJSONArray(resp.Body) {
		s.logger.Warn("nextgen.auth_services.unexpected_payload", zap.String("op", "auth.methods"))
		return []AuthMethod{}, nil
	}
	var methods []AuthMethod
	if err := resp.Decode(&methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// ValidateSession checks a session token.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*SessionStatus, error) {
	if strings.TrimSpace(token) == "" {
		return nil, validationError("session token is required")
	}
	var out SessionStatus
	raw, err := s.call(ctx, "auth.validate_session", http.MethodPost, "session/validate",
		map[string]string{"session_token": token}, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// LogoutSession ends a session. The result is the response's "success"
// field, true when absent.
func (s *AuthService) LogoutSession(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, validationError("session token is required")
	}
	var out struct {
		Success *bool `json:"success"`
	}
	if _, err := s.call(ctx, "auth.logout_session", http.MethodPost, "session/logout",
		map[string]string{"session_token": token}, &out); err != nil {
		return false, err
	}
	return out.Success == nil || *out.Success, nil
}

// call executes an auth-services request and decodes a JSON object into out.
// Non-JSON or non-object bodies leave out untouched.
func (s *AuthService) call(ctx context.Context, name, method, path string, body any, out any) (json.RawMessage, error) {
	resp, err := s.d.Execute(ctx, Request{
		Name:     name,
		Method:   method,
		Endpoint: authServicesBasePath + "/" + path,
		JSON:     body,
	})
	if err != nil {
		return nil, err
	}
	if !resp.JSON || len(resp.Body) == 0 {
		return nil, nil
	}
	var shape map[string]json.RawMessage
	if json.Unmarshal(resp.Body, &shape) != nil {
		s.logger.Warn("nextgen.auth_services.unexpected_payload", zap.String("op", name))
		return json.RawMessage(resp.Body), nil
	}
	if err := resp.Decode(out); err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}
