package screen

// DefaultRate is the capture rate in Hz.
const DefaultRate = 10
