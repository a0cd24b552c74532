package httpapi

import (
	"net/http"
)

func (a *api) handleEmailVerify(w http.ResponseWriter, r *http.Request) {
	u, already, err := a.verificationSvc.Verify(r.Context(), r.PathValue("id"), r.PathValue("proof"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if already {
		WriteData(w, http.StatusOK, "Email already verified.", map[string]any{
			"user_id":  u.ID,
			"verified": true,
		})
		return
	}
	WriteData(w, http.StatusOK, "Email verified successfully!", map[string]any{
		"user_id":  u.ID,
		"verified": true,
		"email":    u.Email,
	})
}

func (a *api) handleEmailResend(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	sent, err := a.verificationSvc.Resend(r.Context(), u.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !sent {
		WriteData(w, http.StatusOK, "Email already verified.", map[string]any{"verified": true})
		return
	}
	WriteData(w, http.StatusOK, "Verification email sent successfully.", nil)
}
