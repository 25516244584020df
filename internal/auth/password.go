package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a barber's plaintext password at the given bcrypt cost.
// Costs outside bcrypt's supported range fall back to the library default, so
// a misconfigured AUTH_BCRYPT_COST degrades instead of failing.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a plaintext password against the stored hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
