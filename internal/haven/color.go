package haven

// Haven lights take an integer color id indexing a fixed palette of
// colors and effects. Requests arriving as RGB or Kelvin values are
// snapped to the nearest palette entry; there is no interpolation.

// FallbackColorID is returned when a lookup table is empty. With the
// static tables below it is unreachable; the constant (24, "Ocean") is
// kept in case the palette ever becomes configurable.
const FallbackColorID = 24

type paletteEntry struct {
	R, G, B uint8
	ID      int
}

type kelvinEntry struct {
	Kelvin int
	ID     int
}

// rgbPalette lists the selectable solid colors. Order matters: distance
// ties are broken by the first entry encountered.
var rgbPalette = []paletteEntry{
	{255, 0, 0, 11},     // Red
	{255, 100, 0, 13},   // Pumpkin
	{255, 191, 0, 14},   // Amber
	{255, 128, 0, 15},   // Tangerine
	{255, 215, 0, 16},   // Marigold
	{255, 255, 0, 18},   // Yellow
	{191, 255, 0, 19},   // Lime
	{128, 255, 0, 20},   // Light Green
	{0, 255, 0, 21},     // Green
	{0, 255, 128, 22},   // Sea Foam
	{64, 224, 208, 23},  // Turquoise
	{0, 0, 255, 25},     // Deep Blue
	{127, 0, 255, 26},   // Violet
	{128, 0, 128, 27},   // Purple
	{230, 230, 250, 28}, // Lavender
	{255, 192, 203, 29}, // Pink
	{255, 105, 180, 30}, // Hot Pink
}

// kelvinTable lists the selectable white temperatures, ascending. Ties
// are broken by the first entry encountered.
var kelvinTable = []kelvinEntry{
	{2700, 1},
	{3000, 2},
	{3500, 3},
	{3700, 4},
	{4000, 5},
	{4100, 6},
	{4700, 7},
	{5000, 8},
}

// effectTable maps named dynamic effects to their color ids.
var effectTable = map[string]int{
	"Fire":   12,
	"Sunset": 17,
	"Ocean":  24,
}

// ClosestColorID returns the palette color id nearest to the given RGB
// triplet by Euclidean distance in RGB space.
func ClosestColorID(r, g, b uint8) int {
	bestID := FallbackColorID
	bestDist := -1
	for _, entry := range rgbPalette {
		dr := int(r) - int(entry.R)
		dg := int(g) - int(entry.G)
		db := int(b) - int(entry.B)
		dist := dr*dr + dg*dg + db*db
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			bestID = entry.ID
		}
	}
	return bestID
}

// ClosestKelvinID returns the color id of the white temperature nearest
// to the given Kelvin value.
func ClosestKelvinID(kelvin int) int {
	bestID := FallbackColorID
	bestDiff := -1
	for _, entry := range kelvinTable {
		diff := kelvin - entry.Kelvin
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			bestID = entry.ID
		}
	}
	return bestID
}

// EffectColorID returns the color id for a named effect. The lookup is
// case-sensitive; ok is false for unknown names.
func EffectColorID(name string) (int, bool) {
	id, ok := effectTable[name]
	return id, ok
}

// EffectNames returns the supported effect names.
func EffectNames() []string {
	names := make([]string, 0, len(effectTable))
	for name := range effectTable {
		names = append(names, name)
	}
	return names
}
