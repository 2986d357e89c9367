package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shopload/csvsource"
	"shopload/keyindex"
	"shopload/schema"
)

var (
	firstNames = []string{
		"John", "Jane", "Michael", "Sarah", "David", "Emily", "Chris", "Lisa", "Daniel", "Ashley",
		"James", "Jessica", "Robert", "Amanda", "William", "Melissa", "Richard", "Jennifer", "Joseph", "Laura",
		"Thomas", "Stephanie", "Charles", "Rebecca", "Matthew", "Nicole", "Andrew", "Rachel", "Joshua", "Elizabeth",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez",
		"Wilson", "Anderson", "Taylor", "Thomas", "Moore", "Jackson", "Martin", "Lee", "Thompson", "White",
		"Harris", "Clark", "Lewis", "Robinson", "Walker", "Young", "Allen", "King", "Wright", "Scott",
	}
	cities = []string{
		"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia", "San Antonio", "San Diego",
		"Dallas", "San Jose", "Austin", "Jacksonville", "Fort Worth", "Columbus", "Charlotte", "Seattle",
		"Denver", "Boston", "Portland", "Las Vegas", "Detroit", "Memphis", "Nashville", "Baltimore", "Milwaukee",
	}
	userStreets  = []string{"Main St", "Oak Ave", "Maple Dr", "Cedar Ln", "Elm St", "Park Ave"}
	orderStreets = []string{"Main St", "Oak Ave", "Maple Dr", "Cedar Ln", "Elm St", "Park Ave", "Washington Blvd", "Lincoln Way"}

	adminFirstNames = []string{"Admin", "Manager", "Supervisor", "Director", "Chief", "Head", "Lead", "Senior", "Principal", "Executive"}
	adminLastNames  = []string{"System", "Operations", "Sales", "Marketing", "Finance", "Support", "Product", "Technology", "Security", "Analytics"}
	adminRoles      = []string{"Admin", "SuperAdmin", "Manager", "Moderator"}

	categoryNames = []string{
		"Electronics", "Clothing", "Books", "Home & Kitchen", "Sports & Outdoors",
		"Toys & Games", "Beauty & Personal Care", "Automotive", "Health & Wellness", "Jewelry",
		"Furniture", "Garden & Outdoor", "Pet Supplies", "Office Products", "Grocery & Gourmet",
		"Baby Products", "Tools & Home Improvement", "Arts & Crafts", "Musical Instruments", "Video Games",
		"Shoes", "Watches", "Luggage & Travel", "Industrial & Scientific", "Handmade Products",
		"Smart Home", "Camera & Photo", "Cell Phones & Accessories", "Computers & Tablets", "Audio & Headphones",
		"TV & Video", "Wearable Technology", "Kitchen Appliances", "Bedding & Bath", "Home Decor",
		"Lighting", "Storage & Organization", "Party Supplies", "Gift Cards", "Magazine Subscriptions",
		"Collectibles & Fine Art", "Entertainment Collectibles", "Sports Collectibles", "Trading Cards", "Coins & Paper Money",
		"Stamps", "Sewing & Needlework", "Scrapbooking", "Beading & Jewelry Making", "Painting & Drawing",
	}

	productTemplates = []string{
		"Premium", "Deluxe", "Classic", "Modern", "Vintage", "Professional", "Essential", "Ultimate",
		"Advanced", "Basic", "Pro", "Elite", "Standard", "Compact", "Portable",
	}
	productTypes = []string{
		"Laptop", "Phone", "Tablet", "Watch", "Camera", "Headphones", "Speaker", "Monitor", "Keyboard",
		"Mouse", "Chair", "Desk", "Lamp", "Backpack", "Wallet", "Shoes", "Jacket", "Shirt", "Pants",
		"Hat", "Book", "Toy", "Game", "Tool", "Blender",
	}

	orderStatuses = []string{"Pending", "Processing", "Shipped", "Delivered", "Cancelled"}
	statusWeights = []float64{0.05, 0.10, 0.15, 0.65, 0.05}
)

// CategoryCount is the size of the fixed category list.
func CategoryCount() int { return len(categoryNames) }

func (g *Generator) pick(list []string) string { return list[g.rng.IntN(len(list))] }

// between returns an int in [lo, hi].
func (g *Generator) between(lo, hi int) int { return lo + g.rng.IntN(hi-lo+1) }

// money returns a price in [lo, hi] rounded to cents.
func (g *Generator) money(lo, hi float64) string {
	return strconv.FormatFloat(lo+g.rng.Float64()*(hi-lo), 'f', 2, 64)
}

func (g *Generator) daysAgo(maxDays int) string {
	return g.now.AddDate(0, 0, -g.between(0, maxDays)).Format(csvsource.DateTimeLayout)
}

func (g *Generator) chance(p float64) string {
	if g.rng.Float64() < p {
		return "1"
	}
	return "0"
}

func (g *Generator) weighted(items []string, weights []float64) string {
	var total float64
	for _, w := range weights {
		total += w
	}
	r := g.rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return items[i]
		}
		r -= w
	}
	return items[len(items)-1]
}

func itoa(i int) string { return strconv.Itoa(i) }

// Users writes n users. Emails are unique through the row number.
func (g *Generator) Users(ctx context.Context, n int) (Summary, error) {
	f, err := g.create(ctx, schema.User, n)
	if err != nil {
		return Summary{}, err
	}
	for i := 1; i <= n && err == nil; i++ {
		first, last := g.pick(firstNames), g.pick(lastNames)
		err = f.write(
			fmt.Sprintf("%s.%s%d@email.com", strings.ToLower(first), strings.ToLower(last), i),
			fmt.Sprintf("hash_%d", g.between(100000, 999999)),
			first,
			last,
			fmt.Sprintf("+1-%d-%d-%d", g.between(200, 999), g.between(100, 999), g.between(1000, 9999)),
			fmt.Sprintf("%d %s", g.between(1, 9999), g.pick(userStreets)),
			g.pick(cities),
			itoa(g.between(10000, 99999)),
			g.daysAgo(730),
			g.chance(0.98),
		)
	}
	return f.finish(err)
}

// Admins writes n admins, all active.
func (g *Generator) Admins(ctx context.Context, n int) (Summary, error) {
	f, err := g.create(ctx, schema.Admin, n)
	if err != nil {
		return Summary{}, err
	}
	for i := 1; i <= n && err == nil; i++ {
		err = f.write(
			fmt.Sprintf("admin%d@ecommerce.com", i),
			fmt.Sprintf("admin_hash_%d", g.between(100000, 999999)),
			g.pick(adminFirstNames),
			g.pick(adminLastNames),
			g.pick(adminRoles),
			g.daysAgo(365),
			"1",
		)
	}
	return f.finish(err)
}

// Categories writes the fixed category list.
func (g *Generator) Categories(ctx context.Context) (Summary, error) {
	f, err := g.create(ctx, schema.Category, len(categoryNames))
	if err != nil {
		return Summary{}, err
	}
	for _, name := range categoryNames {
		if err = f.write(name, fmt.Sprintf("High-quality %s products for all your needs", strings.ToLower(name)), "1"); err != nil {
			break
		}
	}
	return f.finish(err)
}

// Products writes n products spread over categories 1..numCategories.
func (g *Generator) Products(ctx context.Context, n, numCategories int) (Summary, error) {
	if numCategories <= 0 {
		return Summary{}, fmt.Errorf("products need at least one category, got %d", numCategories)
	}
	f, err := g.create(ctx, schema.Product, n)
	if err != nil {
		return Summary{}, err
	}
	for i := 1; i <= n && err == nil; i++ {
		kind := g.pick(productTypes)
		err = f.write(
			itoa(g.between(1, numCategories)),
			fmt.Sprintf("%s %s %d", g.pick(productTemplates), kind, i),
			fmt.Sprintf("High-quality %s with excellent features and durability", strings.ToLower(kind)),
			g.money(5.00, 9999.99),
			itoa(g.between(0, 1000)),
			fmt.Sprintf("https://example.com/images/product_%d.jpg", i),
			g.daysAgo(365),
			g.chance(0.95),
		)
	}
	return f.finish(err)
}

// Orders writes n orders placed by users 1..numUsers over the last two years.
func (g *Generator) Orders(ctx context.Context, n, numUsers int) (Summary, error) {
	if numUsers <= 0 {
		return Summary{}, fmt.Errorf("orders need at least one user, got %d", numUsers)
	}
	f, err := g.create(ctx, schema.Order, n)
	if err != nil {
		return Summary{}, err
	}
	start := g.now.AddDate(0, 0, -730)
	for i := 1; i <= n && err == nil; i++ {
		err = f.write(
			itoa(g.between(1, numUsers)),
			start.AddDate(0, 0, g.between(0, 730)).Format(csvsource.DateTimeLayout),
			g.money(10.00, 5000.00),
			g.weighted(orderStatuses, statusWeights),
			fmt.Sprintf("%d %s", g.between(1, 9999), g.pick(orderStreets)),
			g.pick(cities),
			itoa(g.between(10000, 99999)),
		)
	}
	return f.finish(err)
}

// OrderItems writes n order items referencing orders 1..numOrders. Each
// item's OrderDate is the date of its order in the orders file, or the
// generator's current time when the order is not in the file.
func (g *Generator) OrderItems(ctx context.Context, n, numOrders, numProducts int) (Summary, error) {
	if numOrders <= 0 || numProducts <= 0 {
		return Summary{}, fmt.Errorf("order items need orders and products, got %d and %d", numOrders, numProducts)
	}
	g.logger.Info("Reading orders file for date alignment...")
	ix, err := keyindex.BuildFromStore(ctx, g.cfg.Store, schema.Order.File+g.cfg.FileSuffix, "OrderDate")
	if err != nil {
		return Summary{}, fmt.Errorf("index order dates: %w", err)
	}
	g.logger.Info(fmt.Sprintf("Loaded %d order dates", ix.Len()))
	if ix.Len() < numOrders {
		g.logger.Warn("Orders file is shorter than the order id range; some items will use the fallback date",
			LogFieldRows, ix.Len(), LogFieldRequested, numOrders)
	}

	nowStr := g.now.Format(csvsource.DateTimeLayout)
	resolver := keyindex.Resolver{Index: ix, Fallback: func() string { return nowStr }}

	f, err := g.create(ctx, schema.OrderItem, n)
	if err != nil {
		return Summary{}, err
	}
	for i := 1; i <= n && err == nil; i++ {
		orderID := g.between(1, numOrders)
		var orderDate string
		if orderDate, _, err = resolver.Resolve(orderID); err != nil {
			break
		}
		err = f.write(
			itoa(orderID),
			orderDate,
			itoa(g.between(1, numProducts)),
			itoa(g.between(1, 10)),
			g.money(5.00, 9999.99),
		)
	}
	return f.finish(err)
}

type cartRow struct {
	pair     Pair
	quantity int
	added    time.Time
}

// Cart writes up to n cart items with distinct (user, product) pairs using
// rejection sampling with maxAttempts draws (0 means 2n). A short result is
// logged as a warning, or returned as an error when strict.
func (g *Generator) Cart(ctx context.Context, n, numUsers, numProducts, maxAttempts int, strict bool) (Summary, error) {
	if numUsers <= 0 || numProducts <= 0 {
		return Summary{}, fmt.Errorf("cart items need users and products, got %d and %d", numUsers, numProducts)
	}
	if err := CheckDomain("cart", n, uint64(numUsers)*uint64(numProducts)); err != nil {
		if strict {
			return Summary{Entity: schema.Cart.Name, Requested: n}, err
		}
		g.logger.Warn("Cart request exceeds the number of distinct (user, product) pairs", LogFieldErr, err)
	}

	res := SampleUnique[Pair, cartRow](n, maxAttempts, NewPairSet(), func() (Pair, cartRow) {
		p := Pair{A: uint32(g.between(1, numUsers)), B: uint32(g.between(1, numProducts))}
		return p, cartRow{pair: p, quantity: g.between(1, 5), added: g.now.AddDate(0, 0, -g.between(0, 30))}
	})

	f, err := g.create(ctx, schema.Cart, n)
	if err != nil {
		return Summary{}, err
	}
	for _, r := range res.Records {
		if err = f.write(
			strconv.FormatUint(uint64(r.pair.A), 10),
			strconv.FormatUint(uint64(r.pair.B), 10),
			itoa(r.quantity),
			r.added.Format(csvsource.DateTimeLayout),
		); err != nil {
			break
		}
	}
	f.summary.Attempts = res.Attempts
	summary, err := f.finish(err)
	if err != nil {
		return summary, err
	}

	if exhausted := res.Err("cart"); exhausted != nil {
		g.logger.Warn("Cart generation stopped short",
			LogFieldRows, len(res.Records), LogFieldRequested, n, LogFieldAttempts, res.Attempts)
		if strict {
			return summary, exhausted
		}
	}
	return summary, nil
}
