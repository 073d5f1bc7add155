package push

import (
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// EnsureVAPIDKeys returns the configured key pair, generating an ephemeral
// one when none is set. Generated keys invalidate existing subscriptions on
// restart, so production must configure them.
func EnsureVAPIDKeys(publicKey, privateKey string) (pub, priv string, err error) {
	if publicKey != "" && privateKey != "" {
		return publicKey, privateKey, nil
	}
	priv, pub, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("push: generate vapid keys: %w", err)
	}
	return pub, priv, nil
}
