package sources

import "NewsRelay/internal/domain"

// Defaults is the compiled-in catalog used when the configuration lists no sources.
func Defaults() []domain.Source {
	anime := domain.CategoryAnime
	world := domain.CategoryWorld
	return []domain.Source{
		{Code: "ANN", FeedURL: "https://animenewsnetwork.com/news/rss.xml", Category: anime, Priority: 10, Label: "Anime News Network"},
		{Code: "ANN_DC", FeedURL: "https://animenewsnetwork.com/news/detective-conan/rss.xml", Category: anime, Priority: 10, Label: "ANN (Detective Conan)"},
		{Code: "ANI", FeedURL: "https://animenewsindia.com/feed/", Category: anime, Priority: 10, Label: "Anime News India"},
		{Code: "CR", FeedURL: "https://cr-news-api-service.prd.crunchyrollsvc.com/v1/en-US/rss", Category: anime, Priority: 10, Label: "Crunchyroll News"},
		{Code: "AC", FeedURL: "https://animecorner.me/feed/", Category: anime, Priority: 10, Label: "Anime Corner"},
		{Code: "HONEY", FeedURL: "https://honeysanime.com/feed/", Category: anime, Priority: 10, Label: "Honey's Anime"},
		{Code: "ANIDB", FeedURL: "https://anidb.net/rss/feed.atom", Category: anime, Priority: 5, Label: "AnimeDB"},
		{Code: "ANIMEUK", FeedURL: "https://www.animeuknews.net/feed/", Category: anime, Priority: 5, Label: "Anime UK News"},
		{Code: "MALFEED", FeedURL: "https://myanimelist.net/rss/news.xml", Category: anime, Priority: 5, Label: "MyAnimeList Feed"},
		{Code: "OTAKU", FeedURL: "https://otakuusa.com/feed/", Category: anime, Priority: 5, Label: "Otaku USA"},
		{Code: "ANIPLANET", FeedURL: "https://www.anime-planet.com/feed", Category: anime, Priority: 5, Label: "Anime Planet"},
		{Code: "KOTAKU", FeedURL: "https://kotaku.com/rss", Category: anime, Priority: 1, Label: "Kotaku Anime"},
		{Code: "PCGAMER", FeedURL: "https://www.pcgamer.com/rss", Category: anime, Priority: 1, Label: "PC Gamer Anime"},

		{Code: "BBC", FeedURL: "http://feeds.bbci.co.uk/news/world/rss.xml", Category: world, Priority: 10, Label: "BBC World News"},
		{Code: "ALJ", FeedURL: "https://www.aljazeera.com/xml/rss/all.xml", Category: world, Priority: 10, Label: "Al Jazeera"},
		{Code: "CNN", FeedURL: "http://rss.cnn.com/rss/edition_world.rss", Category: world, Priority: 10, Label: "CNN World"},
		{Code: "GUARD", FeedURL: "https://www.theguardian.com/world/rss", Category: world, Priority: 10, Label: "The Guardian"},
		{Code: "NPR", FeedURL: "https://feeds.npr.org/1001/rss.xml", Category: world, Priority: 10, Label: "NPR International"},
		{Code: "DW", FeedURL: "https://www.dw.com/en/rss/rss-en-all", Category: world, Priority: 10, Label: "Deutsche Welle"},
		{Code: "F24", FeedURL: "https://www.france24.com/en/rss", Category: world, Priority: 10, Label: "France 24"},
		{Code: "CBC", FeedURL: "https://www.cbc.ca/cmlink/rss-world", Category: world, Priority: 10, Label: "CBC World"},
		{Code: "NL", FeedURL: "https://www.newslaundry.com/feed", Category: world, Priority: 5, Label: "NewsLaundry"},
		{Code: "WIRE", FeedURL: "https://thewire.in/feed", Category: world, Priority: 5, Label: "The Wire"},
		{Code: "CARAVAN", FeedURL: "https://caravanmagazine.in/feed", Category: world, Priority: 5, Label: "Caravan Magazine"},
		{Code: "SCROLL", FeedURL: "https://scroll.in/feed", Category: world, Priority: 5, Label: "Scroll.in"},
		{Code: "PRINT", FeedURL: "https://theprint.in/feed", Category: world, Priority: 5, Label: "The Print"},
		{Code: "INTER", FeedURL: "https://theintercept.com/feed/?lang=en", Category: world, Priority: 5, Label: "The Intercept"},
		{Code: "PRO", FeedURL: "https://www.propublica.org/feeds/propublica/main", Category: world, Priority: 5, Label: "ProPublica"},
	}
}
