package config

// Mortgage captures the module parameters seeded at genesis.
type Mortgage struct {
	FeeRate        string   `toml:"FeeRate"`
	FeeReceiver    string   `toml:"FeeReceiver"`
	BaseURI        string   `toml:"BaseURI"`
	Managers       []string `toml:"Managers"`
	NativeAttempts int      `toml:"NativeAttempts"`
	Paused         bool     `toml:"Paused"`
	Quota          Quota    `toml:"quota"`
}

// Quota defines the per-borrower origination limit. Zero limits are disabled.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxVolumePerEpoch   uint64 `toml:"MaxVolumePerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Governance lists the council authorising administrative actions.
type Governance struct {
	Signers   []string `toml:"Signers"`
	Threshold int      `toml:"Threshold"`
}

// Currency registers a loan currency. Address "native" selects the native
// currency; any other address is registered as a token.
type Currency struct {
	Address   string `toml:"Address"`
	Available bool   `toml:"Available"`
	Exclusive bool   `toml:"Exclusive"`
	Discount  string `toml:"Discount"`
}

// Zone assigns a broker and commission rate to an asset zone.
type Zone struct {
	Name       string `toml:"Name"`
	Broker     string `toml:"Broker"`
	Commission string `toml:"Commission"`
}

// Item is a whole asset minted into a collection at genesis.
type Item struct {
	ID    uint64 `toml:"ID"`
	Owner string `toml:"Owner"`
	Zone  string `toml:"Zone"`
}

// Collection registers a whole-item registry.
type Collection struct {
	Address        string `toml:"Address"`
	CollateralRole bool   `toml:"CollateralRole"`
	Items          []Item `toml:"items"`
}

// Holding is a fractional balance minted at genesis.
type Holding struct {
	Owner  string `toml:"Owner"`
	Amount string `toml:"Amount"`
}

// FractionalToken is one divisible asset of a fractional registry.
type FractionalToken struct {
	ID        uint64    `toml:"ID"`
	Zone      string    `toml:"Zone"`
	Available bool      `toml:"Available"`
	Holders   []Holding `toml:"holders"`
}

// Fractional registers a fractional asset registry.
type Fractional struct {
	Address string            `toml:"Address"`
	Tokens  []FractionalToken `toml:"tokens"`
}

// Balance credits an account at genesis. Currency defaults to native.
type Balance struct {
	Account  string `toml:"Account"`
	Currency string `toml:"Currency"`
	Amount   string `toml:"Amount"`
}

// Genesis bundles everything the node seeds into an empty state.
type Genesis struct {
	ChainID     string       `toml:"ChainID"`
	Mortgage    Mortgage     `toml:"mortgage"`
	Governance  Governance   `toml:"governance"`
	Currencies  []Currency   `toml:"currencies"`
	Zones       []Zone       `toml:"zones"`
	Collections []Collection `toml:"collections"`
	Fractionals []Fractional `toml:"fractionals"`
	Alloc       []Balance    `toml:"alloc"`
}
