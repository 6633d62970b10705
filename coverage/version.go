package coverage

// Version of the bincov tools.
const Version = "0.1.0"
