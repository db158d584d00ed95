package memory

// Stopword lists for query tokenization. Matching facts on function words
// would make every score look relevant.
var stopwords = map[string]map[string]bool{
	"fr": wordSet(
		"le", "la", "les", "un", "une", "des", "du", "de", "d", "l",
		"je", "tu", "il", "elle", "on", "nous", "vous", "ils", "elles",
		"me", "te", "se", "moi", "toi", "lui", "leur", "mon", "ma", "mes",
		"ton", "ta", "tes", "son", "sa", "ses", "notre", "votre", "nos", "vos",
		"et", "ou", "mais", "donc", "car", "ni", "que", "qui", "quoi", "dont",
		"ce", "cet", "cette", "ces", "ca", "cela", "y", "en", "ne", "pas",
		"plus", "tres", "bien", "tout", "tous", "toute", "toutes",
		"est", "es", "suis", "sont", "etait", "etre", "avoir", "ai", "as",
		"a", "avec", "sans", "pour", "par", "sur", "sous", "dans", "chez",
		"au", "aux", "si", "oui", "non", "te", "t", "j", "c", "s", "m", "n",
	),
	"en": wordSet(
		"the", "a", "an", "and", "or", "but", "so", "of", "to", "in", "on",
		"at", "by", "for", "with", "about", "as", "is", "are", "was", "were",
		"be", "been", "being", "have", "has", "had", "do", "does", "did",
		"i", "you", "he", "she", "it", "we", "they", "me", "him", "her",
		"my", "your", "his", "its", "our", "their", "this", "that", "these",
		"those", "not", "no", "yes", "very", "too", "also", "just", "what",
		"who", "whom", "which", "when", "where", "how", "why", "there",
	),
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// topicClusters groups query vocabulary into the boost topics. A fact whose
// keywords share a cluster with the query gets the topic boost.
var topicClusters = map[string][]string{
	"work":         {"travail", "boulot", "job", "bureau", "patron", "collegue", "work", "office", "boss", "meeting", "salaire"},
	"family":       {"famille", "mere", "pere", "maman", "papa", "frere", "soeur", "parents", "family", "mother", "father", "brother", "sister", "chat", "chien", "animal", "cat", "dog", "pet"},
	"location":     {"ville", "habite", "quartier", "maison", "appart", "appartement", "city", "live", "home", "apartment", "paris", "lyon"},
	"hobby":        {"sport", "musique", "film", "serie", "jeu", "lire", "livre", "cuisine", "voyage", "music", "movie", "game", "book", "travel", "gym"},
	"relationship": {"amour", "couple", "ex", "copain", "copine", "rencontre", "love", "boyfriend", "girlfriend", "date", "relation"},
	"emotion":      {"triste", "heureux", "heureuse", "peur", "stress", "angoisse", "colere", "sad", "happy", "afraid", "angry", "lonely", "seul", "seule"},
	"future":       {"demain", "bientot", "projet", "reve", "plus tard", "avenir", "tomorrow", "soon", "plan", "dream", "future"},
}
