package clients

// Repo is the storage contract for client registrations. Implementations are
// injected by the host integration; the core only reads through it.
type Repo interface {
	Upsert(clientData *Client) error
	Delete(clientID string) error
	Get(clientID string) (*Client, error)
	List(offset, limit int) ([]*Client, error)
}
