package model

// CoinID is an identifier drawn from the entity catalogue, e.g. "bitcoin"
type CoinID string

// CoinData is the attribute set returned by the market data endpoint for one coin.
// It is passed through to response generation without interpretation.
type CoinData map[string]any

// CoinDataSet maps resolved coins to their market data. Coins without data are absent.
type CoinDataSet map[CoinID]CoinData
