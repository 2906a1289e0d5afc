package local

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/voyageur/internal/identity"
	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func signUpAndConfirm(t *testing.T, f *fixture, email, password string) *models.Session {
	t.Helper()
	ctx := context.Background()
	_, session, err := f.provider.SignUp(ctx, identity.SignupRequest{Email: email, Password: password})
	require.NoError(t, err)
	require.Nil(t, session)

	sent := f.mailer.last()
	require.Equal(t, models.OTPKindSignup, sent.kind)
	session, err = f.provider.VerifyOTP(ctx, email, sent.code, models.OTPKindSignup)
	require.NoError(t, err)
	return session
}

func TestSignUp_PendingUntilConfirmed(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	acc, session, err := f.provider.SignUp(ctx, identity.SignupRequest{
		Email:    "Ada@Example.com",
		Password: "Abcdef12!",
		Metadata: models.AccountMetadata{FullName: "Ada"},
	})
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, "ada@example.com", acc.Email)
	assert.False(t, acc.IsVerified())
	assert.Equal(t, "Ada", acc.Metadata.FullName)

	_, err = f.provider.SignInWithPassword(ctx, "ada@example.com", "Abcdef12!")
	assert.ErrorIs(t, err, models.ErrEmailNotConfirmed)

	sent := f.mailer.last()
	assert.Equal(t, "ada@example.com", sent.email)
	session, err = f.provider.VerifyOTP(ctx, "ada@example.com", sent.code, models.OTPKindSignup)
	require.NoError(t, err)
	require.NotNil(t, session.User)
	assert.True(t, session.User.IsVerified())

	session, err = f.provider.SignInWithPassword(ctx, "ada@example.com", "Abcdef12!")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
}

func TestSignUp_ExistingVerifiedAccount(t *testing.T) {
	f := newFixture(nil)
	signUpAndConfirm(t, f, "ada@example.com", "Abcdef12!")

	_, _, err := f.provider.SignUp(context.Background(), identity.SignupRequest{Email: "ada@example.com", Password: "Other123!"})
	assert.ErrorIs(t, err, models.ErrAccountExists)
}

func TestSignUp_UnverifiedAccountIsReissued(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, _, err := f.provider.SignUp(ctx, identity.SignupRequest{Email: "ada@example.com", Password: "first-pass"})
	require.NoError(t, err)
	first := f.mailer.last().code

	_, _, err = f.provider.SignUp(ctx, identity.SignupRequest{Email: "ada@example.com", Password: "second-pass"})
	require.NoError(t, err)
	second := f.mailer.last().code
	assert.Len(t, f.mailer.sent, 2)

	if first != second {
		_, err = f.provider.VerifyOTP(ctx, "ada@example.com", first, models.OTPKindSignup)
		assert.ErrorIs(t, err, models.ErrInvalidOTP, "superseded code must not verify")
	}

	_, err = f.provider.VerifyOTP(ctx, "ada@example.com", second, models.OTPKindSignup)
	require.NoError(t, err)

	_, err = f.provider.SignInWithPassword(ctx, "ada@example.com", "second-pass")
	assert.NoError(t, err)
	_, err = f.provider.SignInWithPassword(ctx, "ada@example.com", "first-pass")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestSignUp_PasswordPolicy(t *testing.T) {
	f := newFixture(nil)
	_, _, err := f.provider.SignUp(context.Background(), identity.SignupRequest{Email: "a@example.com", Password: "abc"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, f.mailer.sent)
}

func TestSignUp_MailFailureIsUpstream(t *testing.T) {
	f := newFixture(nil)
	f.mailer.err = errors.New("ses down")

	_, _, err := f.provider.SignUp(context.Background(), identity.SignupRequest{Email: "a@example.com", Password: "Abcdef12!"})
	assert.ErrorIs(t, err, models.ErrUpstream)
}

func TestSignInWithPassword_Failures(t *testing.T) {
	f := newFixture(stubGoogle{"g": {Subject: "s", Email: "g@example.com"}})
	signUpAndConfirm(t, f, "ada@example.com", "Abcdef12!")
	_, err := f.provider.SignInWithIDToken(context.Background(), "google", "g")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "nobody@example.com", password: "Abcdef12!"},
		{name: "wrong password", email: "ada@example.com", password: "wrong-pass"},
		{name: "google only account", email: "g@example.com", password: "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.provider.SignInWithPassword(context.Background(), tt.email, tt.password)
			assert.ErrorIs(t, err, models.ErrInvalidCredentials)
		})
	}
}

func TestVerifyOTP_AttemptsExhausted(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	_, _, err := f.provider.SignUp(ctx, identity.SignupRequest{Email: "a@example.com", Password: "Abcdef12!"})
	require.NoError(t, err)
	code := f.mailer.last().code

	for i := 0; i < 3; i++ {
		_, err = f.provider.VerifyOTP(ctx, "a@example.com", wrongCode(code), models.OTPKindSignup)
		assert.ErrorIs(t, err, models.ErrInvalidOTP)
	}

	_, err = f.provider.VerifyOTP(ctx, "a@example.com", code, models.OTPKindSignup)
	assert.ErrorIs(t, err, models.ErrInvalidOTP, "correct code after lockout must fail")
}

func TestVerifyOTP_WrongKindAndSingleUse(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	_, _, err := f.provider.SignUp(ctx, identity.SignupRequest{Email: "a@example.com", Password: "Abcdef12!"})
	require.NoError(t, err)
	code := f.mailer.last().code

	_, err = f.provider.VerifyOTP(ctx, "a@example.com", code, models.OTPKindEmail)
	assert.ErrorIs(t, err, models.ErrInvalidOTP)

	_, err = f.provider.VerifyOTP(ctx, "a@example.com", code, models.OTPKindSignup)
	require.NoError(t, err)

	_, err = f.provider.VerifyOTP(ctx, "a@example.com", code, models.OTPKindSignup)
	assert.ErrorIs(t, err, models.ErrInvalidOTP)
}

func TestSendOTP(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	err := f.provider.SendOTP(ctx, "nobody@example.com", false)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	assert.Empty(t, f.mailer.sent)

	require.NoError(t, f.provider.SendOTP(ctx, "new@example.com", true))
	sent := f.mailer.last()
	assert.Equal(t, models.OTPKindEmail, sent.kind)

	session, err := f.provider.VerifyOTP(ctx, "new@example.com", sent.code, models.OTPKindEmail)
	require.NoError(t, err)
	assert.True(t, session.User.IsVerified())
}

func TestForgotPasswordRoundTrip(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	signUpAndConfirm(t, f, "ada@example.com", "old-password")

	require.NoError(t, f.provider.SendOTP(ctx, "ada@example.com", false))
	session, err := f.provider.VerifyOTP(ctx, "ada@example.com", f.mailer.last().code, models.OTPKindEmail)
	require.NoError(t, err)

	acc, err := f.provider.GetUser(ctx, session.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.provider.UpdatePassword(ctx, acc.ID, "new-password"))
	require.NoError(t, f.provider.SignOut(ctx, session.AccessToken))

	_, err = f.provider.GetUser(ctx, session.AccessToken)
	assert.ErrorIs(t, err, models.ErrInvalidToken, "reset token is single use")

	_, err = f.provider.SignInWithPassword(ctx, "ada@example.com", "new-password")
	assert.NoError(t, err)
	_, err = f.provider.SignInWithPassword(ctx, "ada@example.com", "old-password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestResendSignup(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	require.NoError(t, f.provider.ResendSignup(ctx, "nobody@example.com"))
	assert.Empty(t, f.mailer.sent)

	_, _, err := f.provider.SignUp(ctx, identity.SignupRequest{Email: "a@example.com", Password: "Abcdef12!"})
	require.NoError(t, err)
	require.NoError(t, f.provider.ResendSignup(ctx, "a@example.com"))
	assert.Len(t, f.mailer.sent, 2)

	_, err = f.provider.VerifyOTP(ctx, "a@example.com", f.mailer.last().code, models.OTPKindSignup)
	require.NoError(t, err)
	require.NoError(t, f.provider.ResendSignup(ctx, "a@example.com"))
	assert.Len(t, f.mailer.sent, 2, "verified accounts get no new code")
}

func TestSignInWithIDToken(t *testing.T) {
	google := stubGoogle{
		"new":    {Subject: "sub-new", Email: "new@example.com", Name: "New Person", Picture: "https://img/new"},
		"linked": {Subject: "sub-ada", Email: "ada@example.com", Name: "Ada G"},
		"hijack": {Subject: "sub-other", Email: "ada@example.com"},
	}
	f := newFixture(google)
	ctx := context.Background()
	signUpAndConfirm(t, f, "ada@example.com", "Abcdef12!")

	session, err := f.provider.SignInWithIDToken(ctx, "google", "new")
	require.NoError(t, err)
	assert.True(t, session.User.IsOAuthOnly())
	assert.Equal(t, "New Person", session.User.Metadata.FullName)

	session, err = f.provider.SignInWithIDToken(ctx, "google", "linked")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.MethodPassword, models.MethodGoogle}, session.User.Methods)

	_, err = f.provider.SignInWithIDToken(ctx, "google", "hijack")
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	_, err = f.provider.SignInWithIDToken(ctx, "google", "forged")
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	_, err = f.provider.SignInWithIDToken(ctx, "apple", "new")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSignInWithIDToken_DropsUnconfirmedCredentials(t *testing.T) {
	f := newFixture(stubGoogle{
		"owner": {Subject: "sub-owner", Email: "owner@example.com", Name: "Real Owner"},
	})
	ctx := context.Background()

	_, _, err := f.provider.SignUp(ctx, identity.SignupRequest{
		Email:    "owner@example.com",
		Password: "Squatter123!",
		Metadata: models.AccountMetadata{FullName: "Squatter"},
	})
	require.NoError(t, err)
	squatterCode := f.mailer.last().code

	session, err := f.provider.SignInWithIDToken(ctx, "google", "owner")
	require.NoError(t, err)
	assert.True(t, session.User.IsVerified())
	assert.Equal(t, []string{models.MethodGoogle}, session.User.Methods)
	assert.Empty(t, session.User.Metadata.FullName)

	_, err = f.provider.SignInWithPassword(ctx, "owner@example.com", "Squatter123!")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.provider.VerifyOTP(ctx, "owner@example.com", squatterCode, models.OTPKindSignup)
	assert.ErrorIs(t, err, models.ErrInvalidOTP)

	stored, err := f.accounts.GetByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordHash)
	assert.True(t, stored.IsOAuthOnly())
}

func TestRefreshSession_Rotates(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	session := signUpAndConfirm(t, f, "ada@example.com", "Abcdef12!")

	next, err := f.provider.RefreshSession(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, next.RefreshToken)

	_, err = f.provider.RefreshSession(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	_, err = f.provider.RefreshSession(ctx, next.AccessToken)
	assert.ErrorIs(t, err, models.ErrInvalidToken, "access tokens cannot refresh")
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	session := signUpAndConfirm(t, f, "ada@example.com", "Abcdef12!")

	acc, err := f.provider.FindUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)

	byID, err := f.provider.GetUserByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.Email, byID.Email)

	updated, err := f.provider.UpdateMetadata(ctx, acc.ID, models.AccountMetadata{FullName: "Ada L"})
	require.NoError(t, err)
	assert.Equal(t, "Ada L", updated.Metadata.FullName)

	assert.ErrorIs(t, f.provider.UpdatePassword(ctx, acc.ID, "x"), models.ErrValidation)

	require.NoError(t, f.provider.DeleteUser(ctx, acc.ID))
	assert.ErrorIs(t, f.provider.DeleteUser(ctx, acc.ID), models.ErrAccountNotFound)

	_, err = f.provider.FindUserByEmail(ctx, "ada@example.com")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = f.provider.GetUser(ctx, session.AccessToken)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

var _ IDTokenVerifier = (*oauth.GoogleVerifier)(nil)
