package window

var adjectives = []string{
	"amber", "ancient", "autumn", "bold", "brave", "bright", "brisk", "calm",
	"clever", "cobalt", "cosmic", "crimson", "crisp", "dapper", "daring", "dusty",
	"eager", "early", "electric", "emerald", "fancy", "fearless", "fluffy", "frosty",
	"gentle", "gilded", "glad", "golden", "grand", "happy", "hidden", "hollow",
	"humble", "icy", "indigo", "jolly", "keen", "kind", "lively", "lucky",
	"lunar", "mellow", "misty", "modest", "nimble", "noble", "olive", "patient",
	"plucky", "polar", "proud", "quick", "quiet", "rapid", "rustic", "scarlet",
	"silent", "silver", "solar", "steady", "swift", "tidy", "velvet", "witty",
}

var nouns = []string{
	"anchor", "aurora", "badger", "beacon", "birch", "bison", "canyon", "cedar",
	"comet", "coral", "crane", "creek", "delta", "dune", "eagle", "ember",
	"falcon", "fern", "fjord", "forest", "fox", "galaxy", "glacier", "harbor",
	"hawk", "heron", "island", "jaguar", "kestrel", "lagoon", "lantern", "lark",
	"lynx", "maple", "meadow", "mesa", "meteor", "moose", "nebula", "oak",
	"orbit", "otter", "panda", "pebble", "pine", "prairie", "quartz", "raven",
	"reef", "ridge", "river", "sparrow", "spruce", "summit", "thistle", "tiger",
	"tundra", "valley", "walrus", "willow", "wolf", "yak", "zenith", "zephyr",
}
