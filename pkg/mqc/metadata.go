package mqc

// Metadata is the product/version information returned by GetMetaData.
type Metadata struct {
	ProductName    string
	Version        string
	Major          int
	Minor          int
	Micro          int
	ServicePack    int
	UpdateRelease  int
}

const (
	productName   = "mqgo"
	productMajor  = 1
	productMinor  = 0
	productMicro  = 0
	productSP     = 0
	productUpdate = 0
)

// GetMetaData returns this client's product metadata.
func GetMetaData() Metadata {
	return Metadata{
		ProductName:   productName,
		Version:       "1.0.0",
		Major:         productMajor,
		Minor:         productMinor,
		Micro:         productMicro,
		ServicePack:   productSP,
		UpdateRelease: productUpdate,
	}
}
