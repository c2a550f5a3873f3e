package sources

// Asset names, relative to the public-asset base.
const (
	LocationsFile    = "locations.json"
	CoordinatesFile  = "coordinates.csv"
	DestinationsFile = "destinations.csv"
	BasemapFile      = "world.geo.json"

	// DataDir is where location folders live under the asset base.
	DataDir = "data"
)
