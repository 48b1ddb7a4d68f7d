// Package carrier resolves MCC-MNC network identifiers to carrier names.
//
// Cache.Lookup consults, in order, a TTL cache (24h by default), a static
// fallback table and an external carrier-reference service. Lookups never fail:
// when the reference service is unreachable or returns unusable data the cache
// synthesizes a generic "Network <id>" value and caches it for the TTL window,
// so repeated failures do not hit the service again until the entry expires.
//
// # Quick Start
//
//	cache := carrier.NewCache(
//	    "https://carriers.example.com/v1/lookup",
//	    carrier.WithRateLimit(rate.Limit(5), 10),
//	)
//
//	info := cache.Lookup(ctx, "22288")
//	fmt.Println(info.CarrierName, info.CountryCode) // TIM Italy IT
//
// Entries live in a per-process MemoryStore unless WithStore supplies another
// Store such as RedisStore, which shares entries between instances.
package carrier
