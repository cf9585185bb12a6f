package ecommerce

const (
	productsTable = `
		CREATE TABLE products (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			inventory INT NOT NULL
		)`

	ordersTable = `
		CREATE TABLE orders (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`

	orderItemsTable = `
		CREATE TABLE order_items (
			id VARCHAR(255) PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			product_id VARCHAR(255) NOT NULL,
			quantity INT NOT NULL
		)`

	paymentsTable = `
		CREATE TABLE payments (
			id VARCHAR(255) PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			amount DECIMAL(10, 2) NOT NULL
		)`

	orderItemsByProduct = `CREATE INDEX order_items_product ON order_items (product_id)`
)

var (
	schema = []string{productsTable, ordersTable, orderItemsTable, paymentsTable, orderItemsByProduct}
	// drop order
	tables = []string{"payments", "order_items", "orders", "products"}
)

/*
MongoDB document structure:

products: {
  _id: <string>,
  name: <string>,
  inventory: <number>
}

order_items: {
  _id: <string>,
  order_id: <string>,
  product_id: <string>,
  quantity: <number>
}

*/
