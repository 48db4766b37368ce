package usecase

// FormatSlots is exported for testing
var FormatSlots = formatSlots

// StripCodeFence is exported for testing
var StripCodeFence = stripCodeFence
