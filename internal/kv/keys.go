package kv

import "fmt"

// Key builders for every namespace the application persists in Redis.
// All state in the store is reachable through one of these.

func SessionKey(id string) string { return "session:" + id }

func SessionSetKey(userID int64) string { return fmt.Sprintf("session_set:user:%d", userID) }

func RateLimitIPKey(ip string) string { return "ratelimit:ip:" + ip }

func RateLimitEmailKey(email string) string { return "ratelimit:email:" + email }

func VerifyEmailKey(email string) string { return "verify:email:" + email }

func VerifySecretKey(secret string) string { return "verify:secret:" + secret }

func TwoFASetupKey(userID int64) string { return fmt.Sprintf("two_fa_setup:%d", userID) }

// Meal cache keys, one value + one hash per audience.

func MealCacheKey(audience string) string { return "cache:" + audience + "_meals" }

func MealCacheHashKey(audience string) string { return "cache:" + audience + "_meals_hash" }
