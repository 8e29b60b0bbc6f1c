package queue

import (
	"math/rand"
)

const clientIDChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomString generates client id suffix, client ids have to be unique per broker
func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = clientIDChars[rand.Intn(len(clientIDChars))]
	}
	return string(b)
}
