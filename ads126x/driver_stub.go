//go:build !ads1263

package ads126x

import "fmt"

// Open reports that the vendor SPI driver was not compiled in. Builds
// destined for the instrument use -tags ads1263; everything else gets the
// simulator.
func Open(chipSelect int) (FrontEnd, error) {
	return nil, fmt.Errorf("binary built without the ads1263 driver, cannot open cs %d (use -tags ads1263 or the simulator)", chipSelect)
}
