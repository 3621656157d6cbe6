package env

// Prefix is the env variable prefix for flags
const Prefix = "P2P"
