package audio

// Export internal functions for testing.
// This file is only compiled during tests (suffix _test.go).

// Rejoin exports rejoin for testing.
var Rejoin = rejoin
