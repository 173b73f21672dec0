package generator

// Wordlist is the passphrase word list. It holds 256 distinct lowercase
// words, so each word contributes exactly 8 bits.
var Wordlist = []string{
	"apple", "river", "happy", "cloud", "tiger", "ocean", "music", "dream",
	"forest", "mountain", "silver", "golden", "purple", "orange", "yellow",
	"green", "blue", "red", "white", "black", "sunset", "sunrise", "thunder",
	"lightning", "rainbow", "crystal", "diamond", "emerald", "ruby", "pearl",
	"falcon", "eagle", "dragon", "phoenix", "unicorn", "wizard", "knight",
	"queen", "king", "prince", "castle", "tower", "bridge", "garden",
	"meadow", "valley", "canyon", "desert", "island", "beach", "voyage",
	"quest", "journey", "adventure", "mystery", "legend", "story", "chapter",
	"novel", "poem", "guitar", "piano", "violin", "trumpet", "flute",
	"melody", "harmony", "rhythm", "tempo", "chorus", "canvas", "palette",
	"brush", "sketch", "portrait", "landscape", "sculpture", "gallery",
	"museum", "studio", "quantum", "nebula", "cosmos", "galaxy", "stellar",
	"lunar", "solar", "meteor", "comet", "asteroid", "cipher", "binary",
	"matrix", "vector", "scalar", "tensor", "fractal", "algorithm",
	"function", "variable", "anchor", "compass", "harbor", "captain",
	"sailor", "vessel", "horizon", "current", "tide", "blossom", "petal",
	"orchard", "vineyard", "harvest", "season", "spring", "autumn", "whisper",
	"echo", "silence", "symphony", "crescendo", "ember", "flame", "spark",
	"blaze", "inferno", "ash", "smoke", "kindle", "torch", "lantern", "frost",
	"glacier", "arctic", "polar", "tundra", "winter", "snowfall", "icicle",
	"frozen", "chill", "acorn", "alpine", "amber", "arrow", "atlas", "aurora",
	"badger", "bamboo", "banner", "barley", "basil", "beacon", "birch",
	"bison", "breeze", "bronze", "buffalo", "cactus", "candle", "canopy",
	"caramel", "cedar", "cello", "cherry", "chestnut", "cinder", "citrus",
	"clover", "cobalt", "coral", "cotton", "coyote", "crater", "cricket",
	"cypress", "dawn", "delta", "dolphin", "dune", "feather", "fern", "fjord",
	"flint", "fossil", "fox", "gale", "garnet", "geyser", "ginger", "granite",
	"gravel", "harp", "hazel", "heron", "hickory", "honey", "indigo", "ivory",
	"jade", "jasmine", "juniper", "kayak", "kestrel", "lagoon", "lava",
	"lemon", "lilac", "linen", "lotus", "magnet", "maple", "marble", "marsh",
	"meteorite", "mint", "mosaic", "moss", "nectar", "nutmeg", "oasis",
	"olive", "onyx", "opal", "orbit", "otter", "owl", "panda", "papaya",
	"pebble", "pepper", "pilot", "pine", "plaza", "prairie", "puzzle",
	"quartz", "quill", "raven", "reef", "ripple", "robin", "saffron", "sage",
	"sapphire", "satin", "sequoia", "shadow", "shell", "sierra", "sparrow",
	"spruce", "summit", "swan", "thistle",
}
