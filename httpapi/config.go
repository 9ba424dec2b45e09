package httpapi

// Config defines the consumer bridge settings.
type Config struct {
	Addr        string
	BasePath    string
	HistorySize int
}
